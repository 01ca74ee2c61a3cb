package http

import (
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

// SendMessageRequest is the payload for POST /messages/send.
type SendMessageRequest struct {
	Provider     string `json:"provider"` // "whatsapp" (default) or "twilio"
	Recipient    string `json:"recipient"`
	Kind         string `json:"kind"` // "text", "template", "media"
	Content      string `json:"content"`
	TemplateName string `json:"template_name,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`

	ReferenceDoctype string `json:"reference_doctype,omitempty"`
	ReferenceName    string `json:"reference_name,omitempty"`
}

// OperationResponse is the uniform result envelope for all operations: the
// external contract is "always answer, never crash the caller's flow".
type OperationResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	MessageID         string `json:"message_id,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Status            string `json:"status,omitempty"`
}

// MessageStatusResponse is the payload for GET /messages/{messageID}.
type MessageStatusResponse struct {
	ID                string                    `json:"id"`
	Provider          core_domain.ProviderName  `json:"provider"`
	ProviderMessageID *string                   `json:"provider_message_id,omitempty"`
	Recipient         string                    `json:"recipient"`
	Kind              core_domain.MessageKind   `json:"kind"`
	Content           string                    `json:"content,omitempty"`
	Status            core_domain.MessageStatus `json:"status"`
	ErrorMessage      *string                   `json:"error_message,omitempty"`
	QueuedAt          *time.Time                `json:"queued_at,omitempty"`
	SentAt            *time.Time                `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time                `json:"delivered_at,omitempty"`
	ReadAt            *time.Time                `json:"read_at,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// TemplateListResponse is the payload for GET /templates.
type TemplateListResponse struct {
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	Templates []TemplateResponse `json:"templates,omitempty"`
}

// TemplateResponse is one approved template entry.
type TemplateResponse struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"`
}
