package core_domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageStatus defines the lifecycle states of an outbound notification.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Rank gives the total order used to keep out-of-order delivery callbacks
// monotonic: a transition is only applied when the new status outranks the
// current one. A delivery failure reported by the transport never downgrades
// a message the recipient has already read.
func (ms MessageStatus) Rank() int {
	switch ms {
	case StatusQueued:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// IsValid reports whether ms is one of the known lifecycle states.
func (ms MessageStatus) IsValid() bool {
	return ms.Rank() >= 0
}

// Value implements the driver.Valuer interface for MessageStatus.
func (ms MessageStatus) Value() (driver.Value, error) {
	return string(ms), nil
}

// Scan implements the sql.Scanner interface for MessageStatus.
func (ms *MessageStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan MessageStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*ms = MessageStatus(strVal)
	if !ms.IsValid() {
		return fmt.Errorf("unknown MessageStatus value: %s", strVal)
	}
	return nil
}

// MessageKind defines the payload type of an outbound notification.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindTemplate MessageKind = "template"
	KindMedia    MessageKind = "media"
)

// IsValid reports whether mk is a known message kind.
func (mk MessageKind) IsValid() bool {
	switch mk {
	case KindText, KindTemplate, KindMedia:
		return true
	}
	return false
}

// ProviderName discriminates which messaging provider a record belongs to.
// A single tagged record type replaces the per-provider log tables the system
// grew out of.
type ProviderName string

const (
	ProviderWhatsApp ProviderName = "whatsapp"
	ProviderTwilio   ProviderName = "twilio"
)

// IsValid reports whether pn is a known provider.
func (pn ProviderName) IsValid() bool {
	switch pn {
	case ProviderWhatsApp, ProviderTwilio:
		return true
	}
	return false
}

// MessageRecord is the persisted log entry for one outbound notification and
// its lifecycle. ProviderMessageID is the join key for delivery callbacks and
// is unique across all records once set.
type MessageRecord struct {
	ID                string        `json:"id"` // UUID
	Provider          ProviderName  `json:"provider"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty"`
	Recipient         string        `json:"recipient"`
	Kind              MessageKind   `json:"kind"`
	Content           string        `json:"content"`
	TemplateName      *string       `json:"template_name,omitempty"`
	MediaURL          *string       `json:"media_url,omitempty"`
	Status            MessageStatus `json:"status"`
	ErrorMessage      *string       `json:"error_message,omitempty"`
	RawResponse       *string       `json:"raw_response,omitempty"`
	ReferenceDoctype  *string       `json:"reference_doctype,omitempty"`
	ReferenceName     *string       `json:"reference_name,omitempty"`
	QueuedAt          *time.Time    `json:"queued_at,omitempty"`
	SentAt            *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	ReadAt            *time.Time    `json:"read_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// ValidateForKind checks the kind-specific required fields: template messages
// need a template name and media messages need a media URL.
func (m *MessageRecord) ValidateForKind() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %q", m.Kind)
	}
	switch m.Kind {
	case KindTemplate:
		if m.TemplateName == nil || *m.TemplateName == "" {
			return fmt.Errorf("template name is required for template messages")
		}
	case KindMedia:
		if m.MediaURL == nil || *m.MediaURL == "" {
			return fmt.Errorf("media URL is required for media messages")
		}
	}
	return nil
}
