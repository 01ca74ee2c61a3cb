package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

// WhatsAppCallbackPayload is the Meta Graph webhook envelope. Status updates
// are nested under entry[].changes[].value.statuses[].
type WhatsAppCallbackPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Statuses []WhatsAppStatusUpdate `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppStatusUpdate is one status object from the callback.
type WhatsAppStatusUpdate struct {
	ID        string `json:"id"`     // provider message id
	Status    string `json:"status"` // "delivered", "read", "failed", ...
	Timestamp string `json:"timestamp"` // unix seconds, as a string
	Errors    []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// StatusEvents flattens the nested envelope into normalized events.
func (p *WhatsAppCallbackPayload) StatusEvents() []StatusEvent {
	var events []StatusEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				ev := StatusEvent{
					Provider:          core_domain.ProviderWhatsApp,
					ProviderMessageID: st.ID,
					RawStatus:         st.Status,
				}
				if secs, err := strconv.ParseInt(st.Timestamp, 10, 64); err == nil {
					ev.OccurredAt = time.Unix(secs, 0).UTC()
				}
				if len(st.Errors) > 0 {
					ev.ErrorCode = strconv.Itoa(st.Errors[0].Code)
					ev.ErrorMessage = st.Errors[0].Message
					if ev.ErrorMessage == "" {
						ev.ErrorMessage = st.Errors[0].Title
					}
				}
				events = append(events, ev)
			}
		}
	}
	return events
}

// TwilioStatusCallback is the flat shape Twilio posts (form-encoded, or JSON
// from gateway intermediaries).
type TwilioStatusCallback struct {
	MessageSid    string `json:"MessageSid"`
	MessageStatus string `json:"MessageStatus"`
	ErrorCode     string `json:"ErrorCode,omitempty"`
	ErrorMessage  string `json:"ErrorMessage,omitempty"`
}

// StatusEvent returns the normalized event for this callback.
func (c *TwilioStatusCallback) StatusEvent() StatusEvent {
	return StatusEvent{
		Provider:          core_domain.ProviderTwilio,
		ProviderMessageID: c.MessageSid,
		RawStatus:         c.MessageStatus,
		ErrorCode:         c.ErrorCode,
		ErrorMessage:      c.ErrorMessage,
	}
}

// StatusEvent is a provider-agnostic delivery status report.
type StatusEvent struct {
	Provider          core_domain.ProviderName
	ProviderMessageID string
	RawStatus         string
	ErrorCode         string
	ErrorMessage      string
	// OccurredAt is the provider's event time; zero when the provider did not
	// supply one.
	OccurredAt time.Time
}

// MapProviderStatus maps a provider's raw status string (case-insensitive)
// onto the canonical lifecycle enum. Unrecognized values return ok=false and
// are ignored by the reconciler rather than rejected: providers introduce new
// status values and forward compatibility matters more than strict validation
// here.
func MapProviderStatus(raw string) (status core_domain.MessageStatus, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent":
		return core_domain.StatusSent, true
	case "delivered":
		return core_domain.StatusDelivered, true
	case "read":
		return core_domain.StatusRead, true
	case "failed", "undelivered":
		return core_domain.StatusFailed, true
	default:
		return "", false
	}
}
