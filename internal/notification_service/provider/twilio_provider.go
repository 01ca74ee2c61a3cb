package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

// TwilioConfig carries the Twilio REST API credentials. Passed in explicitly
// at construction.
type TwilioConfig struct {
	APIBaseURL string // e.g. "https://api.twilio.com/2010-04-01"
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioProvider sends SMS through the Twilio Messages API. Unlike the
// WhatsApp path it delivers the literal body text of a text message.
type TwilioProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        TwilioConfig
}

// NewTwilioProvider creates a Twilio adapter. If httpClient is nil a default
// client with a bounded timeout is used.
func NewTwilioProvider(logger *slog.Logger, cfg TwilioConfig, httpClient *http.Client) *TwilioProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TwilioProvider{
		logger:     logger.With("provider", "twilio"),
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (p *TwilioProvider) GetName() core_domain.ProviderName {
	return core_domain.ProviderTwilio
}

// twilioMessageResponse is the subset of the Messages API response we read.
type twilioMessageResponse struct {
	Sid          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	// Error envelope fields on 4xx responses
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	if p.cfg.AccountSID == "" || p.cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", domain.ErrMissingCredential)
	}

	form := url.Values{}
	form.Set("To", details.Recipient)
	form.Set("From", p.cfg.FromNumber)

	switch details.Kind {
	case core_domain.KindText, core_domain.KindTemplate:
		// Twilio has no pre-approval concept for plain SMS; template records
		// fall back to their rendered content.
		form.Set("Body", details.Content)
	case core_domain.KindMedia:
		if details.MediaURL == "" {
			return nil, fmt.Errorf("media URL is required for media messages")
		}
		form.Set("Body", details.Content)
		form.Set("MediaUrl", details.MediaURL)
	default:
		return nil, fmt.Errorf("invalid message kind: %q", details.Kind)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.cfg.APIBaseURL, p.cfg.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Twilio HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	p.logger.DebugContext(ctx, "Sending HTTP request to Twilio", "internal_message_id", details.InternalMessageID)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Twilio", "error", err, "internal_message_id", details.InternalMessageID)
		return nil, fmt.Errorf("failed to send request to Twilio: %w", err)
	}
	defer httpResp.Body.Close()

	respBodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_TWILIO_READ_ERR_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("Twilio API request (status %d): failed to read response body: %v", httpResp.StatusCode, readErr),
		}, nil
	}
	rawBody := string(respBodyBytes)

	var msgResp twilioMessageResponse
	parseErr := json.Unmarshal(respBodyBytes, &msgResp)

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 && parseErr == nil && msgResp.Sid != "" {
		p.logger.InfoContext(ctx, "Twilio message accepted",
			"provider_message_id", msgResp.Sid, "twilio_status", msgResp.Status, "internal_message_id", details.InternalMessageID)
		return &SendResponseDetails{
			ProviderMessageID: msgResp.Sid,
			IsSuccess:         true,
			ProviderStatus:    fmt.Sprintf("SENT_TWILIO_%d", httpResp.StatusCode),
			RawResponse:       rawBody,
		}, nil
	}

	errMsg := fmt.Sprintf("Twilio API error: status %d", httpResp.StatusCode)
	if parseErr == nil && msgResp.Message != "" {
		errMsg = msgResp.Message
	} else if len(respBodyBytes) > 0 && len(respBodyBytes) < 500 {
		errMsg = fmt.Sprintf("Twilio API error: status %d, raw_body: %s", httpResp.StatusCode, rawBody)
	}

	p.logger.WarnContext(ctx, "Twilio send failed", "status_code", httpResp.StatusCode, "error_message", errMsg, "internal_message_id", details.InternalMessageID)
	return &SendResponseDetails{
		IsSuccess:      false,
		ProviderStatus: fmt.Sprintf("FAILED_TWILIO_%d", httpResp.StatusCode),
		ErrorMessage:   errMsg,
		RawResponse:    rawBody,
	}, nil
}
