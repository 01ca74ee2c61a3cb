package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, domain.MessageRecordRepository) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mockPool, NewPgMessageRecordRepository(mockPool, logger)
}

func TestPgMessageRecordRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectExec(`INSERT INTO message_records`).
			WithArgs(
				pgxmock.AnyArg(), core_domain.ProviderWhatsApp, (*string)(nil), "15551234567", core_domain.KindText, "hello", (*string)(nil),
				(*string)(nil), core_domain.StatusQueued, (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		rec, err := repo.Create(context.Background(), &core_domain.MessageRecord{
			Provider:  core_domain.ProviderWhatsApp,
			Recipient: "15551234567",
			Kind:      core_domain.KindText,
			Content:   "hello",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, core_domain.StatusQueued, rec.Status)
		require.NotNil(t, rec.QueuedAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("TemplateKindWithoutNameIsValidationError", func(t *testing.T) {
		_, repo := newMockRepo(t)

		_, err := repo.Create(context.Background(), &core_domain.MessageRecord{
			Provider:  core_domain.ProviderWhatsApp,
			Recipient: "15551234567",
			Kind:      core_domain.KindTemplate,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("MissingRecipientIsValidationError", func(t *testing.T) {
		_, repo := newMockRepo(t)

		_, err := repo.Create(context.Background(), &core_domain.MessageRecord{
			Provider: core_domain.ProviderTwilio,
			Kind:     core_domain.KindText,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownProviderIsValidationError", func(t *testing.T) {
		_, repo := newMockRepo(t)

		_, err := repo.Create(context.Background(), &core_domain.MessageRecord{
			Provider:  "smtp",
			Recipient: "15551234567",
			Kind:      core_domain.KindText,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestPgMessageRecordRepository_UpdateStatus(t *testing.T) {
	pmid := "wamid.abc"

	t.Run("AppliedWhenRankAdvances", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE message_records SET`).
			WithArgs("rec-1", core_domain.StatusSent, &pmid, (*string)(nil), (*string)(nil), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		applied, err := repo.UpdateStatus(context.Background(), "rec-1", domain.StatusUpdate{
			Status:            core_domain.StatusSent,
			ProviderMessageID: &pmid,
		})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("StaleTransitionIsRejectedNotErrored", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		// Rank guard lets the UPDATE touch zero rows; the follow-up existence
		// check finds the record, so this is a rejected transition.
		mockPool.ExpectExec(`UPDATE message_records SET`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("rec-1").
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(true))

		applied, err := repo.UpdateStatus(context.Background(), "rec-1", domain.StatusUpdate{
			Status: core_domain.StatusDelivered,
		})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("UnknownRecordIsNotFound", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE message_records SET`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("missing").
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.UpdateStatus(context.Background(), "missing", domain.StatusUpdate{
			Status: core_domain.StatusDelivered,
		})
		assert.ErrorIs(t, err, domain.ErrMessageRecordNotFound)
	})

	t.Run("FailedStatusRequiresErrorMessage", func(t *testing.T) {
		_, repo := newMockRepo(t)

		_, err := repo.UpdateStatus(context.Background(), "rec-1", domain.StatusUpdate{
			Status: core_domain.StatusFailed,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownStatusIsInvalidTransition", func(t *testing.T) {
		_, repo := newMockRepo(t)

		_, err := repo.UpdateStatus(context.Background(), "rec-1", domain.StatusUpdate{
			Status: "exploded",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestPgMessageRecordRepository_ApplyStatusByProviderMessageID(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectExec(`UPDATE message_records SET`).
		WithArgs("wamid.abc", core_domain.StatusRead, (*string)(nil), (*string)(nil), (*string)(nil), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	applied, err := repo.ApplyStatusByProviderMessageID(context.Background(), "wamid.abc", domain.StatusUpdate{
		Status: core_domain.StatusRead,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgMessageRecordRepository_RequeueFailed(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		// The old provider_message_id must be dropped alongside the error so a
		// resend can record the replacement id and keep matching callbacks.
		mockPool.ExpectExec(`UPDATE message_records\s+SET status = 'queued', error_message = NULL, provider_message_id = NULL`).
			WithArgs("rec-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.RequeueFailed(context.Background(), "rec-1"))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NonFailedRecordIsInvalidTransition", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE message_records`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("rec-1").
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(true))

		err := repo.RequeueFailed(context.Background(), "rec-1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("UnknownRecordIsNotFound", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE message_records`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("missing").
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(false))

		err := repo.RequeueFailed(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrMessageRecordNotFound)
	})
}

func TestPgMessageRecordRepository_GetByID_NotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectQuery(`SELECT (.+) FROM message_records WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrMessageRecordNotFound)
}
