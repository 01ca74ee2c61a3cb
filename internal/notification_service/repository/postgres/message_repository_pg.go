package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

// DBTX is the subset of pgxpool.Pool used by this repository. Declared as an
// interface so tests can substitute pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgMessageRecordRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewPgMessageRecordRepository creates a PostgreSQL-backed message record store.
func NewPgMessageRecordRepository(db DBTX, logger *slog.Logger) domain.MessageRecordRepository {
	return &pgMessageRecordRepository{db: db, logger: logger.With("component", "message_repository_pg")}
}

const messageColumns = `id, provider, provider_message_id, recipient, kind, content, template_name,
		       media_url, status, error_message, raw_response, reference_doctype, reference_name,
		       queued_at, sent_at, delivered_at, read_at, created_at, updated_at`

// rankExpr maps a status value onto its rank inside SQL so the status/rank
// comparison happens in the same atomic UPDATE that mutates the row.
const rankExpr = `CASE %s WHEN 'queued' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 WHEN 'failed' THEN 4 ELSE -1 END`

func (r *pgMessageRecordRepository) Create(ctx context.Context, rec *core_domain.MessageRecord) (*core_domain.MessageRecord, error) {
	if err := rec.ValidateForKind(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	if !rec.Provider.IsValid() {
		return nil, fmt.Errorf("%w: invalid provider %q", domain.ErrValidation, rec.Provider)
	}
	if rec.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Status = core_domain.StatusQueued
	rec.QueuedAt = &now
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `
		INSERT INTO message_records (
			id, provider, provider_message_id, recipient, kind, content, template_name,
			media_url, status, error_message, raw_response, reference_doctype, reference_name,
			queued_at, sent_at, delivered_at, read_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Provider, rec.ProviderMessageID, rec.Recipient, rec.Kind, rec.Content, rec.TemplateName,
		rec.MediaURL, rec.Status, rec.ErrorMessage, rec.RawResponse, rec.ReferenceDoctype, rec.ReferenceName,
		rec.QueuedAt, rec.SentAt, rec.DeliveredAt, rec.ReadAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message record: %w", err)
	}
	return rec, nil
}

func (r *pgMessageRecordRepository) GetByID(ctx context.Context, id string) (*core_domain.MessageRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM message_records WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgMessageRecordRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*core_domain.MessageRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM message_records WHERE provider_message_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, providerMessageID))
}

func (r *pgMessageRecordRepository) ListByStatus(ctx context.Context, status core_domain.MessageStatus, limit int) ([]*core_domain.MessageRecord, error) {
	query := `SELECT ` + messageColumns + `
		FROM message_records
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing message records by status: %w", err)
	}
	defer rows.Close()

	var records []*core_domain.MessageRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *pgMessageRecordRepository) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate) (bool, error) {
	return r.applyStatus(ctx, "id", id, upd)
}

func (r *pgMessageRecordRepository) ApplyStatusByProviderMessageID(ctx context.Context, providerMessageID string, upd domain.StatusUpdate) (bool, error) {
	return r.applyStatus(ctx, "provider_message_id", providerMessageID, upd)
}

// applyStatus performs the single sanctioned lifecycle mutation: one atomic
// UPDATE whose WHERE clause enforces the rank order, with COALESCE keeping
// provider_message_id and timestamps write-once. Two concurrent callbacks for
// the same record therefore resolve to the highest-rank status regardless of
// arrival order.
func (r *pgMessageRecordRepository) applyStatus(ctx context.Context, keyColumn, key string, upd domain.StatusUpdate) (bool, error) {
	if !upd.Status.IsValid() {
		return false, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, upd.Status)
	}
	if upd.Status == core_domain.StatusFailed && (upd.ErrorMessage == nil || *upd.ErrorMessage == "") {
		return false, fmt.Errorf("%w: failed status requires an error message", domain.ErrValidation)
	}

	occurredAt := upd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		UPDATE message_records SET
			status = $2,
			provider_message_id = COALESCE(provider_message_id, $3),
			error_message = CASE WHEN $2 = 'failed' THEN $4 ELSE error_message END,
			raw_response = COALESCE($5, raw_response),
			sent_at = CASE WHEN $2 = 'sent' THEN COALESCE(sent_at, $6) ELSE sent_at END,
			delivered_at = CASE WHEN $2 = 'delivered' THEN COALESCE(delivered_at, $6) ELSE delivered_at END,
			read_at = CASE WHEN $2 = 'read' THEN COALESCE(read_at, $6) ELSE read_at END,
			updated_at = $7
		WHERE %s = $1 AND `+rankExpr+` < `+rankExpr,
		keyColumn, "status", "$2")

	tag, err := r.db.Exec(ctx, query,
		key, upd.Status, upd.ProviderMessageID, upd.ErrorMessage, upd.RawResponse, occurredAt, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("updating message record status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish "no such record" from "rank guard rejected the transition".
	var exists bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM message_records WHERE %s = $1)`, keyColumn)
	if err := r.db.QueryRow(ctx, checkQuery, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking message record existence: %w", err)
	}
	if !exists {
		return false, domain.ErrMessageRecordNotFound
	}
	return false, nil
}

func (r *pgMessageRecordRepository) RequeueFailed(ctx context.Context, id string) error {
	// provider_message_id is cleared so the resend attempt can record its own
	// id: a record that failed via a delivery callback still carries the old
	// one, and the write-once COALESCE in applyStatus would otherwise keep it,
	// leaving callbacks for the new send unmatched.
	query := `
		UPDATE message_records
		SET status = 'queued', error_message = NULL, provider_message_id = NULL, updated_at = $2
		WHERE id = $1 AND status = 'failed'
	`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("requeueing message record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM message_records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking message record existence: %w", err)
	}
	if !exists {
		return domain.ErrMessageRecordNotFound
	}
	return fmt.Errorf("%w: only failed messages can be requeued", domain.ErrInvalidTransition)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *pgMessageRecordRepository) scanOne(row pgx.Row) (*core_domain.MessageRecord, error) {
	rec, err := r.scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *pgMessageRecordRepository) scanRecord(row rowScanner) (*core_domain.MessageRecord, error) {
	rec := &core_domain.MessageRecord{}
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ProviderMessageID, &rec.Recipient, &rec.Kind, &rec.Content, &rec.TemplateName,
		&rec.MediaURL, &rec.Status, &rec.ErrorMessage, &rec.RawResponse, &rec.ReferenceDoctype, &rec.ReferenceName,
		&rec.QueuedAt, &rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
