package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/provider"
)

// NotificationService coordinates record creation, provider dispatch and
// resend handling. All lifecycle mutations go through the repository's
// rank-guarded update path.
type NotificationService struct {
	repo      domain.MessageRecordRepository
	notifiers map[core_domain.ProviderName]provider.Notifier
	logger    *slog.Logger
}

// NewNotificationService creates the application service. notifiers maps each
// configured provider onto its adapter.
func NewNotificationService(
	repo domain.MessageRecordRepository,
	notifiers map[core_domain.ProviderName]provider.Notifier,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:      repo,
		notifiers: notifiers,
		logger:    logger.With("component", "notification_service"),
	}
}

// SubmitRequest is the single entry point payload for originating a send.
type SubmitRequest struct {
	Provider         core_domain.ProviderName
	Recipient        string
	Kind             core_domain.MessageKind
	Content          string
	TemplateName     string
	MediaURL         string
	ReferenceDoctype string
	ReferenceName    string
}

// Submit creates a message record in queued state and immediately dispatches
// it to the configured provider. The returned record reflects the outcome of
// the synchronous send (sent or failed); it is never left queued.
func (s *NotificationService) Submit(ctx context.Context, req SubmitRequest) (*core_domain.MessageRecord, error) {
	rec := &core_domain.MessageRecord{
		Provider:  req.Provider,
		Recipient: req.Recipient,
		Kind:      req.Kind,
		Content:   req.Content,
	}
	if req.TemplateName != "" {
		rec.TemplateName = &req.TemplateName
	}
	if req.MediaURL != "" {
		rec.MediaURL = &req.MediaURL
	}
	if req.ReferenceDoctype != "" {
		rec.ReferenceDoctype = &req.ReferenceDoctype
	}
	if req.ReferenceName != "" {
		rec.ReferenceName = &req.ReferenceName
	}

	rec, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	messagesSubmittedCounter.WithLabelValues(string(req.Provider), string(req.Kind)).Inc()
	s.logger.InfoContext(ctx, "Message record created", "message_id", rec.ID, "provider", rec.Provider, "kind", rec.Kind)

	s.dispatch(ctx, rec)
	return s.repo.GetByID(ctx, rec.ID)
}

// Resend requeues a failed record and performs one new send attempt.
// Records in any other state are rejected with ErrInvalidTransition.
func (s *NotificationService) Resend(ctx context.Context, id string) (*core_domain.MessageRecord, error) {
	if err := s.repo.RequeueFailed(ctx, id); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Message record requeued for resend", "message_id", id)

	s.dispatch(ctx, rec)
	return s.repo.GetByID(ctx, id)
}

// Get returns a single record by id.
func (s *NotificationService) Get(ctx context.Context, id string) (*core_domain.MessageRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// ProcessQueuedSummary reports the outcome of a queued batch run.
type ProcessQueuedSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ProcessQueued dispatches every record still in queued state, up to limit.
// Used for drain/recovery runs; normal submissions dispatch inline.
func (s *NotificationService) ProcessQueued(ctx context.Context, limit int) (ProcessQueuedSummary, error) {
	var summary ProcessQueuedSummary

	records, err := s.repo.ListByStatus(ctx, core_domain.StatusQueued, limit)
	if err != nil {
		return summary, err
	}

	for _, rec := range records {
		summary.Processed++
		if s.dispatch(ctx, rec) {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}
	s.logger.InfoContext(ctx, "Finished processing queued messages",
		"processed", summary.Processed, "sent", summary.Sent, "failed", summary.Failed)
	return summary, nil
}

// dispatch submits one queued record to its provider and records exactly one
// status transition. Whatever happens on the wire, the record does not remain
// queued after dispatch returns.
func (s *NotificationService) dispatch(ctx context.Context, rec *core_domain.MessageRecord) (sent bool) {
	notifier, ok := s.notifiers[rec.Provider]
	if !ok {
		s.logger.ErrorContext(ctx, "No adapter configured for provider", "provider", rec.Provider, "message_id", rec.ID)
		s.markFailed(ctx, rec.ID, fmt.Sprintf("provider %q is not configured", rec.Provider), "")
		return false
	}

	details := provider.SendRequestDetails{
		InternalMessageID: rec.ID,
		Recipient:         rec.Recipient,
		Kind:              rec.Kind,
		Content:           rec.Content,
	}
	if rec.TemplateName != nil {
		details.TemplateName = *rec.TemplateName
	}
	if rec.MediaURL != nil {
		details.MediaURL = *rec.MediaURL
	}

	start := time.Now()
	resp, err := notifier.Send(ctx, details)
	providerSendDurationHist.WithLabelValues(string(rec.Provider)).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.ErrorContext(ctx, "Provider send failed", "error", err, "message_id", rec.ID, "provider", rec.Provider)
		s.markFailed(ctx, rec.ID, err.Error(), "")
		providerSendResultsCounter.WithLabelValues(string(rec.Provider), "failed").Inc()
		return false
	}
	if !resp.IsSuccess {
		s.markFailed(ctx, rec.ID, resp.ErrorMessage, resp.RawResponse)
		providerSendResultsCounter.WithLabelValues(string(rec.Provider), "failed").Inc()
		return false
	}

	upd := domain.StatusUpdate{
		Status:            core_domain.StatusSent,
		ProviderMessageID: &resp.ProviderMessageID,
	}
	if resp.RawResponse != "" {
		upd.RawResponse = &resp.RawResponse
	}
	if _, err := s.repo.UpdateStatus(ctx, rec.ID, upd); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark message record sent", "error", err, "message_id", rec.ID)
		providerSendResultsCounter.WithLabelValues(string(rec.Provider), "failed").Inc()
		return false
	}
	providerSendResultsCounter.WithLabelValues(string(rec.Provider), "sent").Inc()
	s.logger.InfoContext(ctx, "Message sent",
		"message_id", rec.ID, "provider", rec.Provider, "provider_message_id", resp.ProviderMessageID)
	return true
}

func (s *NotificationService) markFailed(ctx context.Context, id, errorMessage, rawResponse string) {
	if errorMessage == "" {
		errorMessage = "unknown provider error"
	}
	upd := domain.StatusUpdate{
		Status:       core_domain.StatusFailed,
		ErrorMessage: &errorMessage,
	}
	if rawResponse != "" {
		upd.RawResponse = &rawResponse
	}
	if _, err := s.repo.UpdateStatus(ctx, id, upd); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark message record failed", "error", err, "message_id", id)
	}
}
