package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/platform/messagebroker"
)

// WorkflowTransitionEvent is published by the host application whenever a
// document reaches a new workflow state. The publisher resolves recipients
// and renders the message body; this service only originates the sends.
type WorkflowTransitionEvent struct {
	Doctype    string   `json:"doctype"`
	Name       string   `json:"name"`
	State      string   `json:"state"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	Provider   string   `json:"provider,omitempty"` // defaults to whatsapp
}

// WorkflowConsumer subscribes to workflow transition events and submits one
// notification per recipient. Failures are logged, never surfaced back to
// the broker: a bad event must not wedge the subscription.
type WorkflowConsumer struct {
	natsClient *messagebroker.NatsClient
	svc        *NotificationService
	logger     *slog.Logger
}

// NewWorkflowConsumer creates a new WorkflowConsumer.
func NewWorkflowConsumer(natsClient *messagebroker.NatsClient, svc *NotificationService, logger *slog.Logger) *WorkflowConsumer {
	return &WorkflowConsumer{
		natsClient: natsClient,
		svc:        svc,
		logger:     logger.With("component", "workflow_consumer"),
	}
}

// Start subscribes with a queue group and blocks until ctx is cancelled.
func (c *WorkflowConsumer) Start(ctx context.Context, subject string, queueGroup string) error {
	msgHandler := func(msg *nats.Msg) {
		c.handleEvent(ctx, msg.Data)
	}

	c.logger.InfoContext(ctx, "Starting workflow transition subscription", "subject", subject, "queue_group", queueGroup)
	sub, err := c.natsClient.SubscribeToSubjectWithQueue(subject, queueGroup, msgHandler)
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		c.logger.WarnContext(ctx, "Failed to unsubscribe workflow consumer", "error", err)
	}
	c.logger.InfoContext(ctx, "Workflow transition subscription ended", "subject", subject)
	return ctx.Err()
}

func (c *WorkflowConsumer) handleEvent(ctx context.Context, data []byte) {
	var event WorkflowTransitionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to deserialize workflow transition event", "error", err, "data", string(data))
		workflowEventsCounter.WithLabelValues("error").Inc()
		return
	}
	if len(event.Recipients) == 0 {
		c.logger.DebugContext(ctx, "Workflow transition event without recipients, skipping",
			"doctype", event.Doctype, "name", event.Name, "state", event.State)
		workflowEventsCounter.WithLabelValues("ok").Inc()
		return
	}

	providerName := core_domain.ProviderWhatsApp
	if event.Provider != "" {
		providerName = core_domain.ProviderName(event.Provider)
	}

	for _, recipient := range event.Recipients {
		if recipient == "" {
			continue
		}
		rec, err := c.svc.Submit(ctx, SubmitRequest{
			Provider:         providerName,
			Recipient:        recipient,
			Kind:             core_domain.KindText,
			Content:          event.Message,
			ReferenceDoctype: event.Doctype,
			ReferenceName:    event.Name,
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to submit workflow notification",
				"error", err, "recipient", recipient, "doctype", event.Doctype, "name", event.Name)
			continue
		}
		c.logger.InfoContext(ctx, "Workflow notification submitted",
			"message_id", rec.ID, "status", rec.Status, "recipient", recipient, "state", event.State)
	}
	workflowEventsCounter.WithLabelValues("ok").Inc()
}
