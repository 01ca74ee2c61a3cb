package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/provider"
)

func newTestWorkflowConsumer(repo *MockMessageRecordRepository, notifiers map[core_domain.ProviderName]provider.Notifier) *WorkflowConsumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorkflowConsumer(nil, NewNotificationService(repo, notifiers, logger), logger)
}

func TestWorkflowConsumer_HandleEvent_SubmitsPerRecipient(t *testing.T) {
	repo := new(MockMessageRecordRepository)
	notifier := &MockNotifier{name: core_domain.ProviderWhatsApp}
	consumer := newTestWorkflowConsumer(repo, map[core_domain.ProviderName]provider.Notifier{
		core_domain.ProviderWhatsApp: notifier,
	})

	var submitted []string
	repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *core_domain.MessageRecord) bool {
		submitted = append(submitted, rec.Recipient)
		return rec.Kind == core_domain.KindText &&
			rec.ReferenceDoctype != nil && *rec.ReferenceDoctype == "Sales Order" &&
			rec.ReferenceName != nil && *rec.ReferenceName == "SO-0042"
	})).Return(queuedRecord("rec-wf"), nil).Twice()
	notifier.On("Send", mock.Anything, mock.Anything).
		Return(&provider.SendResponseDetails{ProviderMessageID: "wamid.wf", IsSuccess: true}, nil).Twice()
	repo.On("UpdateStatus", mock.Anything, "rec-wf", mock.Anything).Return(true, nil).Twice()
	repo.On("GetByID", mock.Anything, "rec-wf").Return(queuedRecord("rec-wf"), nil).Twice()

	consumer.handleEvent(context.Background(), []byte(`{
		"doctype": "Sales Order",
		"name": "SO-0042",
		"state": "Approved",
		"recipients": ["15551111111", "15552222222"],
		"message": "Sales Order SO-0042 is now Approved"
	}`))

	assert.ElementsMatch(t, []string{"15551111111", "15552222222"}, submitted)
	repo.AssertExpectations(t)
}

func TestWorkflowConsumer_HandleEvent_BadPayloadIsSwallowed(t *testing.T) {
	repo := new(MockMessageRecordRepository)
	consumer := newTestWorkflowConsumer(repo, nil)

	consumer.handleEvent(context.Background(), []byte(`{broken`))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWorkflowConsumer_HandleEvent_NoRecipients(t *testing.T) {
	repo := new(MockMessageRecordRepository)
	consumer := newTestWorkflowConsumer(repo, nil)

	consumer.handleEvent(context.Background(), []byte(`{"doctype": "Sales Order", "name": "SO-1", "recipients": []}`))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWorkflowConsumer_HandleEvent_OneFailureDoesNotStopOthers(t *testing.T) {
	repo := new(MockMessageRecordRepository)
	notifier := &MockNotifier{name: core_domain.ProviderWhatsApp}
	consumer := newTestWorkflowConsumer(repo, map[core_domain.ProviderName]provider.Notifier{
		core_domain.ProviderWhatsApp: notifier,
	})

	repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *core_domain.MessageRecord) bool {
		return rec.Recipient == "bad-recipient"
	})).Return(nil, errors.New("invalid recipient")).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *core_domain.MessageRecord) bool {
		return rec.Recipient == "15552222222"
	})).Return(queuedRecord("rec-ok"), nil).Once()
	notifier.On("Send", mock.Anything, mock.Anything).
		Return(&provider.SendResponseDetails{ProviderMessageID: "wamid.x", IsSuccess: true}, nil).Once()
	repo.On("UpdateStatus", mock.Anything, "rec-ok", mock.Anything).Return(true, nil).Once()
	repo.On("GetByID", mock.Anything, "rec-ok").Return(queuedRecord("rec-ok"), nil).Once()

	consumer.handleEvent(context.Background(), []byte(`{
		"doctype": "Sales Order",
		"name": "SO-0042",
		"recipients": ["bad-recipient", "15552222222"],
		"message": "hello"
	}`))

	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}
