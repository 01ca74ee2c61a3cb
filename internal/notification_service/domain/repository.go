package domain

import (
	"context"
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

// StatusUpdate carries the fields that may change when a record transitions
// into a new status. Fields left nil are not touched.
type StatusUpdate struct {
	Status core_domain.MessageStatus
	// ProviderMessageID is set at most once; a non-nil value here is ignored
	// if the record already carries one.
	ProviderMessageID *string
	// ErrorMessage is recorded only on a transition into failed.
	ErrorMessage *string
	// RawResponse replaces the last raw provider response body kept for diagnostics.
	RawResponse *string
	// OccurredAt stamps the timestamp column for the entered status.
	// Zero means time.Now().
	OccurredAt time.Time
}

// MessageRecordRepository is the persistence port for message records.
//
// UpdateStatus and ApplyStatusByProviderMessageID are the only sanctioned
// mutation paths for lifecycle state. Both perform a single atomic
// read-modify-write guarded by status rank, so concurrent webhook deliveries
// for the same record cannot regress status or re-set a timestamp.
type MessageRecordRepository interface {
	Create(ctx context.Context, rec *core_domain.MessageRecord) (*core_domain.MessageRecord, error)
	GetByID(ctx context.Context, id string) (*core_domain.MessageRecord, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*core_domain.MessageRecord, error)
	ListByStatus(ctx context.Context, status core_domain.MessageStatus, limit int) ([]*core_domain.MessageRecord, error)

	// UpdateStatus advances the record identified by id. It returns applied=false
	// without error when the rank guard rejected the transition (stale or
	// out-of-order update), and ErrMessageRecordNotFound when no such record exists.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (applied bool, err error)

	// ApplyStatusByProviderMessageID is UpdateStatus keyed by the provider's
	// message id, used by delivery reconciliation.
	ApplyStatusByProviderMessageID(ctx context.Context, providerMessageID string, upd StatusUpdate) (applied bool, err error)

	// RequeueFailed performs the one sanctioned backward transition
	// failed -> queued for a manual resend. It clears error_message but keeps
	// timestamps already set. Returns ErrInvalidTransition if the record is
	// not in failed state.
	RequeueFailed(ctx context.Context, id string) error
}
