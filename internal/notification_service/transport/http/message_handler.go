package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/app"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

// ConnectionTester is implemented by adapters that can verify their
// configured credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// MessageHandler exposes the notification API: submit, resend, status lookup,
// queued-batch processing, template listing and a connection test.
type MessageHandler struct {
	svc       *app.NotificationService
	templates *app.TemplateCatalog
	connTest  ConnectionTester
	logger    *slog.Logger
}

// NewMessageHandler creates the handler. templates and connTest may be nil
// when the WhatsApp provider is not configured.
func NewMessageHandler(svc *app.NotificationService, templates *app.TemplateCatalog, connTest ConnectionTester, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		svc:       svc,
		templates: templates,
		connTest:  connTest,
		logger:    logger.With("handler", "message"),
	}
}

// RegisterRoutes registers the message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages/send", h.handleSendMessage)
	r.Post("/messages/{messageID}/resend", h.handleResendMessage)
	r.Post("/messages/process-queued", h.handleProcessQueued)
	r.Get("/messages/{messageID}", h.handleGetMessageStatus)
	r.Get("/templates", h.handleListTemplates)
	r.Get("/test-connection", h.handleTestConnection)
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode send message request", "error", err)
		h.writeResult(w, http.StatusBadRequest, OperationResponse{Success: false, Error: "invalid request payload: " + err.Error()})
		return
	}

	providerName := core_domain.ProviderWhatsApp
	if req.Provider != "" {
		providerName = core_domain.ProviderName(req.Provider)
	}
	kind := core_domain.KindText
	if req.Kind != "" {
		kind = core_domain.MessageKind(req.Kind)
	}

	rec, err := h.svc.Submit(ctx, app.SubmitRequest{
		Provider:         providerName,
		Recipient:        req.Recipient,
		Kind:             kind,
		Content:          req.Content,
		TemplateName:     req.TemplateName,
		MediaURL:         req.MediaURL,
		ReferenceDoctype: req.ReferenceDoctype,
		ReferenceName:    req.ReferenceName,
	})
	if err != nil {
		logger.WarnContext(ctx, "Submit failed", "error", err)
		h.writeResult(w, h.statusForError(err), OperationResponse{Success: false, Error: err.Error()})
		return
	}

	resp := OperationResponse{
		Success:   rec.Status == core_domain.StatusSent,
		MessageID: rec.ID,
		Status:    string(rec.Status),
	}
	if rec.ProviderMessageID != nil {
		resp.ProviderMessageID = *rec.ProviderMessageID
	}
	if rec.ErrorMessage != nil {
		resp.Error = *rec.ErrorMessage
	}
	h.writeResult(w, http.StatusOK, resp)
}

func (h *MessageHandler) handleResendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	messageID := chi.URLParam(r, "messageID")

	rec, err := h.svc.Resend(ctx, messageID)
	if err != nil {
		logger.WarnContext(ctx, "Resend failed", "error", err, "message_id", messageID)
		h.writeResult(w, h.statusForError(err), OperationResponse{Success: false, Error: err.Error()})
		return
	}

	resp := OperationResponse{
		Success:   rec.Status == core_domain.StatusSent,
		MessageID: rec.ID,
		Status:    string(rec.Status),
	}
	if rec.ProviderMessageID != nil {
		resp.ProviderMessageID = *rec.ProviderMessageID
	}
	if rec.ErrorMessage != nil {
		resp.Error = *rec.ErrorMessage
	}
	h.writeResult(w, http.StatusOK, resp)
}

func (h *MessageHandler) handleProcessQueued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	summary, err := h.svc.ProcessQueued(ctx, 100)
	if err != nil {
		logger.ErrorContext(ctx, "Processing queued messages failed", "error", err)
		h.writeResult(w, http.StatusInternalServerError, OperationResponse{Success: false, Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		app.ProcessQueuedSummary
	}{Success: true, ProcessQueuedSummary: summary})
}

func (h *MessageHandler) handleGetMessageStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	messageID := chi.URLParam(r, "messageID")

	rec, err := h.svc.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageRecordNotFound) {
			h.writeResult(w, http.StatusNotFound, OperationResponse{Success: false, Error: "message not found"})
			return
		}
		logger.ErrorContext(ctx, "Failed to fetch message record", "error", err, "message_id", messageID)
		h.writeResult(w, http.StatusInternalServerError, OperationResponse{Success: false, Error: "failed to retrieve message status"})
		return
	}

	resp := MessageStatusResponse{
		ID:                rec.ID,
		Provider:          rec.Provider,
		ProviderMessageID: rec.ProviderMessageID,
		Recipient:         rec.Recipient,
		Kind:              rec.Kind,
		Content:           rec.Content,
		Status:            rec.Status,
		ErrorMessage:      rec.ErrorMessage,
		QueuedAt:          rec.QueuedAt,
		SentAt:            rec.SentAt,
		DeliveredAt:       rec.DeliveredAt,
		ReadAt:            rec.ReadAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *MessageHandler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if h.templates == nil {
		h.writeTemplates(w, http.StatusOK, TemplateListResponse{Success: false, Error: "WhatsApp integration is not enabled"})
		return
	}

	templates, err := h.templates.Templates(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list templates", "error", err)
		h.writeTemplates(w, http.StatusOK, TemplateListResponse{Success: false, Error: err.Error()})
		return
	}

	resp := TemplateListResponse{Success: true, Templates: make([]TemplateResponse, 0, len(templates))}
	for _, t := range templates {
		resp.Templates = append(resp.Templates, TemplateResponse(t))
	}
	h.writeTemplates(w, http.StatusOK, resp)
}

func (h *MessageHandler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.connTest == nil {
		h.writeResult(w, http.StatusOK, OperationResponse{Success: false, Error: "WhatsApp integration is not enabled"})
		return
	}
	if err := h.connTest.TestConnection(ctx); err != nil {
		h.writeResult(w, http.StatusOK, OperationResponse{Success: false, Error: err.Error()})
		return
	}
	h.writeResult(w, http.StatusOK, OperationResponse{Success: true})
}

func (h *MessageHandler) statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMessageRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *MessageHandler) writeResult(w http.ResponseWriter, statusCode int, resp OperationResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (h *MessageHandler) writeTemplates(w http.ResponseWriter, statusCode int, resp TemplateListResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
