package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

// WhatsAppConfig carries the credentials and endpoint identifiers for the
// WhatsApp Business (Meta Graph) API. Passed in explicitly at construction.
type WhatsAppConfig struct {
	APIBaseURL        string // e.g. "https://graph.facebook.com/v21.0"
	AccessToken       string
	PhoneNumberID     string
	BusinessAccountID string
}

// WhatsAppProvider sends messages through the WhatsApp Business Cloud API.
type WhatsAppProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        WhatsAppConfig
}

// NewWhatsAppProvider creates a WhatsApp Business API adapter. If httpClient
// is nil a default client with a bounded timeout is used.
func NewWhatsAppProvider(logger *slog.Logger, cfg WhatsAppConfig, httpClient *http.Client) *WhatsAppProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WhatsAppProvider{
		logger:     logger.With("provider", "whatsapp"),
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (p *WhatsAppProvider) GetName() core_domain.ProviderName {
	return core_domain.ProviderWhatsApp
}

// waTemplatePayload is the template object inside a template-typed message.
type waTemplatePayload struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []interface{} `json:"components"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waMediaLink struct {
	Link string `json:"link"`
}

// waSendRequestBody is the Graph API /messages request envelope.
type waSendRequestBody struct {
	MessagingProduct string             `json:"messaging_product"`
	RecipientType    string             `json:"recipient_type"`
	To               string             `json:"to"`
	Type             string             `json:"type"`
	Template         *waTemplatePayload `json:"template,omitempty"`
	Image            *waMediaLink       `json:"image,omitempty"`
}

// waSendSuccessResponse is the Graph API success envelope; the provider
// message id lives in messages[0].id.
type waSendSuccessResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// waErrorResponse is the Graph API structured error envelope.
type waErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *WhatsAppProvider) buildPayload(details SendRequestDetails) (*waSendRequestBody, error) {
	body := &waSendRequestBody{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               details.Recipient,
	}

	switch details.Kind {
	case core_domain.KindText:
		// First-contact messages must use a pre-approved template, so the text
		// kind is wrapped in the approved hello_world template and the literal
		// body is NOT sent through this provider. TODO: confirm with product
		// whether this is a regulatory requirement or should become a session
		// text message once a conversation window is open.
		body.Type = "template"
		body.Template = &waTemplatePayload{
			Name:       "hello_world",
			Language:   waLanguage{Code: "en_US"},
			Components: []interface{}{},
		}
	case core_domain.KindTemplate:
		if details.TemplateName == "" {
			return nil, fmt.Errorf("template name is required for template messages")
		}
		body.Type = "template"
		body.Template = &waTemplatePayload{
			Name:       details.TemplateName,
			Language:   waLanguage{Code: "en_US"},
			Components: []interface{}{},
		}
	case core_domain.KindMedia:
		if details.MediaURL == "" {
			return nil, fmt.Errorf("media URL is required for media messages")
		}
		body.Type = "image"
		body.Image = &waMediaLink{Link: details.MediaURL}
	default:
		return nil, fmt.Errorf("invalid message kind: %q", details.Kind)
	}
	return body, nil
}

func (p *WhatsAppProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	if p.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: whatsapp access token is not configured", domain.ErrMissingCredential)
	}

	payload, err := p.buildPayload(details)
	if err != nil {
		return nil, err
	}

	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal WhatsApp request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", p.cfg.APIBaseURL, p.cfg.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)

	p.logger.DebugContext(ctx, "Sending HTTP request to WhatsApp", "url", url, "internal_message_id", details.InternalMessageID)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to WhatsApp", "error", err, "internal_message_id", details.InternalMessageID)
		return nil, fmt.Errorf("failed to send request to WhatsApp: %w", err)
	}
	defer httpResp.Body.Close()

	respBodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_WHATSAPP_READ_ERR_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("WhatsApp API request (status %d): failed to read response body: %v", httpResp.StatusCode, readErr),
		}, nil
	}
	rawBody := string(respBodyBytes)
	p.logger.DebugContext(ctx, "Received HTTP response from WhatsApp", "status_code", httpResp.StatusCode, "internal_message_id", details.InternalMessageID)

	if httpResp.StatusCode == http.StatusOK {
		var successResp waSendSuccessResponse
		if err := json.Unmarshal(respBodyBytes, &successResp); err == nil && len(successResp.Messages) > 0 && successResp.Messages[0].ID != "" {
			p.logger.InfoContext(ctx, "WhatsApp message accepted",
				"provider_message_id", successResp.Messages[0].ID, "internal_message_id", details.InternalMessageID)
			return &SendResponseDetails{
				ProviderMessageID: successResp.Messages[0].ID,
				IsSuccess:         true,
				ProviderStatus:    fmt.Sprintf("SENT_WHATSAPP_%d", httpResp.StatusCode),
				RawResponse:       rawBody,
			}, nil
		}
		// 200 without a message id is still a failed send: the record must not
		// end up marked sent with no join key for reconciliation.
		p.logger.WarnContext(ctx, "WhatsApp returned 200 without a message id", "body", rawBody, "internal_message_id", details.InternalMessageID)
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_WHATSAPP_NO_MESSAGE_ID",
			ErrorMessage:   "WhatsApp response did not contain a message id",
			RawResponse:    rawBody,
		}, nil
	}

	errMsg := fmt.Sprintf("WhatsApp API error: status %d", httpResp.StatusCode)
	var errResp waErrorResponse
	if err := json.Unmarshal(respBodyBytes, &errResp); err == nil && errResp.Error.Message != "" {
		errMsg = errResp.Error.Message
	} else if len(respBodyBytes) > 0 && len(respBodyBytes) < 500 {
		errMsg = fmt.Sprintf("WhatsApp API error: status %d, raw_body: %s", httpResp.StatusCode, rawBody)
	}

	p.logger.WarnContext(ctx, "WhatsApp send failed", "status_code", httpResp.StatusCode, "error_message", errMsg, "internal_message_id", details.InternalMessageID)
	return &SendResponseDetails{
		IsSuccess:      false,
		ProviderStatus: fmt.Sprintf("FAILED_WHATSAPP_%d", httpResp.StatusCode),
		ErrorMessage:   errMsg,
		RawResponse:    rawBody,
	}, nil
}

// ListTemplates fetches the approved message templates for the configured
// WhatsApp Business Account.
func (p *WhatsAppProvider) ListTemplates(ctx context.Context) ([]MessageTemplate, error) {
	url := fmt.Sprintf("%s/%s/message_templates", p.cfg.APIBaseURL, p.cfg.BusinessAccountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create template list request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to list WhatsApp templates: %w", err)
	}
	defer httpResp.Body.Close()

	respBodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read template list response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("WhatsApp template list error: status %d: %s", httpResp.StatusCode, string(respBodyBytes))
	}

	var listResp struct {
		Data []MessageTemplate `json:"data"`
	}
	if err := json.Unmarshal(respBodyBytes, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse template list response: %w", err)
	}
	return listResp.Data, nil
}

// TestConnection verifies the configured credentials by fetching the business
// profile for the phone number.
func (p *WhatsAppProvider) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s/whatsapp_business_profile", p.cfg.APIBaseURL, p.cfg.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create connection test request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("connection test failed: status %d: %s", httpResp.StatusCode, string(body))
	}
	return nil
}

// MessageTemplate is one approved template from the Business Account.
type MessageTemplate struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"`
}
