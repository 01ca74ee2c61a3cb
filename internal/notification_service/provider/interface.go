package provider

import (
	"context"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

// SendRequestDetails holds the data a provider adapter needs to submit one
// outbound notification.
type SendRequestDetails struct {
	InternalMessageID string // Our system's message record ID
	Recipient         string
	Kind              core_domain.MessageKind
	Content           string
	TemplateName      string
	MediaURL          string
}

// SendResponseDetails holds the classified outcome of a send attempt.
type SendResponseDetails struct {
	ProviderMessageID string // ID assigned by the provider, empty on failure
	IsSuccess         bool
	ProviderStatus    string // Raw status label, e.g. "SENT_WHATSAPP_200"
	ErrorMessage      string // Provider's structured error text, or raw error text
	RawResponse       string // Last raw response body, retained for diagnostics
}

// Notifier is the interface for an outbound messaging provider adapter.
// Adapters are constructed with an explicit configuration struct; they never
// read settings ambiently.
type Notifier interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	GetName() core_domain.ProviderName
}
