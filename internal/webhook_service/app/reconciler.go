package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	notifdomain "github.com/tenacious-erp/integration_services/internal/notification_service/domain"
	"github.com/tenacious-erp/integration_services/internal/webhook_service/domain"
)

// Reconciler consumes asynchronous provider status callbacks and advances
// message records. It is replay-safe: the store's rank-guarded update makes
// duplicate and out-of-order callbacks no-ops, so several workers can process
// callbacks for the same record concurrently.
type Reconciler struct {
	repo   notifdomain.MessageRecordRepository
	logger *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(repo notifdomain.MessageRecordRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		logger: logger.With("component", "reconciler"),
	}
}

// Apply processes one normalized status event. It only returns an error for
// infrastructure failures; unknown message ids and unrecognized status values
// are logged and swallowed so the webhook endpoint can always acknowledge.
func (r *Reconciler) Apply(ctx context.Context, ev domain.StatusEvent) error {
	providerLabel := string(ev.Provider)
	callbacksReceivedCounter.WithLabelValues(providerLabel).Inc()

	if ev.ProviderMessageID == "" {
		r.logger.WarnContext(ctx, "Status event without provider message id, ignoring", "provider", ev.Provider, "raw_status", ev.RawStatus)
		callbacksAppliedCounter.WithLabelValues(providerLabel, "unknown_id").Inc()
		return nil
	}

	status, ok := domain.MapProviderStatus(ev.RawStatus)
	if !ok {
		r.logger.InfoContext(ctx, "Unrecognized provider status, ignoring",
			"provider", ev.Provider, "raw_status", ev.RawStatus, "provider_message_id", ev.ProviderMessageID)
		callbacksAppliedCounter.WithLabelValues(providerLabel, "unmapped_status").Inc()
		return nil
	}

	upd := notifdomain.StatusUpdate{
		Status:     status,
		OccurredAt: ev.OccurredAt,
	}
	if status == core_domain.StatusFailed {
		errMsg := ev.ErrorMessage
		if errMsg == "" && ev.ErrorCode != "" {
			errMsg = fmt.Sprintf("delivery failed with provider error code %s", ev.ErrorCode)
		}
		if errMsg == "" {
			errMsg = fmt.Sprintf("delivery failed with provider status %q", ev.RawStatus)
		}
		upd.ErrorMessage = &errMsg
	}

	applied, err := r.repo.ApplyStatusByProviderMessageID(ctx, ev.ProviderMessageID, upd)
	if err != nil {
		if errors.Is(err, notifdomain.ErrMessageRecordNotFound) {
			// Callbacks for ids we never recorded are expected: provider
			// retries, messages originated elsewhere, already-purged records.
			r.logger.DebugContext(ctx, "Callback for unknown provider message id, ignoring",
				"provider", ev.Provider, "provider_message_id", ev.ProviderMessageID)
			callbacksAppliedCounter.WithLabelValues(providerLabel, "unknown_id").Inc()
			return nil
		}
		r.logger.ErrorContext(ctx, "Failed to apply status event",
			"error", err, "provider", ev.Provider, "provider_message_id", ev.ProviderMessageID, "status", status)
		callbacksAppliedCounter.WithLabelValues(providerLabel, "error").Inc()
		return err
	}

	if !applied {
		r.logger.DebugContext(ctx, "Stale or duplicate status event, record unchanged",
			"provider", ev.Provider, "provider_message_id", ev.ProviderMessageID, "status", status)
		callbacksAppliedCounter.WithLabelValues(providerLabel, "stale").Inc()
		return nil
	}

	r.logger.InfoContext(ctx, "Delivery status applied",
		"provider", ev.Provider, "provider_message_id", ev.ProviderMessageID, "status", status)
	callbacksAppliedCounter.WithLabelValues(providerLabel, "applied").Inc()
	return nil
}
