package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tenacious-erp/integration_services/internal/webhook_service/app"
	"github.com/tenacious-erp/integration_services/internal/webhook_service/domain"
)

// WebhookHandler terminates the inbound provider callback endpoints. POST
// callbacks are always acknowledged with success — a non-2xx answer would
// make the provider retry events we already processed, or mark the endpoint
// unhealthy. The only rejection is the GET verification mismatch.
type WebhookHandler struct {
	reconciler  *app.Reconciler
	verifyToken string
	logger      *slog.Logger
}

// NewWebhookHandler creates the handler. verifyToken guards the GET
// verification handshake.
func NewWebhookHandler(reconciler *app.Reconciler, verifyToken string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler:  reconciler,
		verifyToken: verifyToken,
		logger:      logger.With("handler", "webhook"),
	}
}

// RegisterRoutes registers the webhook routes with the given router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhooks/whatsapp", h.handleVerification)
	r.Post("/webhooks/whatsapp", h.handleWhatsAppCallback)
	r.Post("/webhooks/twilio", h.handleTwilioCallback)
}

// handleVerification answers the provider's one-shot GET challenge: echo the
// challenge verbatim when the verify token matches, 403 otherwise. Meta sends
// hub.-prefixed parameter names; the bare names are accepted for gateways
// that strip the prefix.
func (h *WebhookHandler) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verifyToken := q.Get("hub.verify_token")
	if verifyToken == "" {
		verifyToken = q.Get("verify_token")
	}
	challenge := q.Get("hub.challenge")
	if challenge == "" {
		challenge = q.Get("challenge")
	}

	if h.verifyToken == "" || verifyToken != h.verifyToken {
		h.logger.WarnContext(r.Context(), "Webhook verification token mismatch", "request_id", chi_middleware.GetReqID(r.Context()))
		http.Error(w, "verification token mismatch", http.StatusForbidden)
		return
	}

	h.logger.InfoContext(r.Context(), "Webhook verification succeeded")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

func (h *WebhookHandler) handleWhatsAppCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var payload domain.WhatsAppCallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.WarnContext(ctx, "Failed to decode WhatsApp callback payload", "error", err)
		h.acknowledge(w)
		return
	}

	events := payload.StatusEvents()
	logger.DebugContext(ctx, "WhatsApp callback received", "status_events", len(events))
	for _, ev := range events {
		if err := h.reconciler.Apply(ctx, ev); err != nil {
			logger.ErrorContext(ctx, "Failed to reconcile WhatsApp status event",
				"error", err, "provider_message_id", ev.ProviderMessageID)
		}
	}
	h.acknowledge(w)
}

func (h *WebhookHandler) handleTwilioCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var callback domain.TwilioStatusCallback
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
			logger.WarnContext(ctx, "Failed to decode Twilio JSON callback", "error", err)
			h.acknowledge(w)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			logger.WarnContext(ctx, "Failed to parse Twilio form callback", "error", err)
			h.acknowledge(w)
			return
		}
		callback = domain.TwilioStatusCallback{
			MessageSid:    r.PostFormValue("MessageSid"),
			MessageStatus: r.PostFormValue("MessageStatus"),
			ErrorCode:     r.PostFormValue("ErrorCode"),
			ErrorMessage:  r.PostFormValue("ErrorMessage"),
		}
	}

	if err := h.reconciler.Apply(ctx, callback.StatusEvent()); err != nil {
		logger.ErrorContext(ctx, "Failed to reconcile Twilio status event",
			"error", err, "provider_message_id", callback.MessageSid)
	}
	h.acknowledge(w)
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
