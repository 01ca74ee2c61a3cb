package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWhatsAppProvider_GetName(t *testing.T) {
	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{}, nil)
	assert.Equal(t, core_domain.ProviderWhatsApp, p.GetName())
}

func TestWhatsAppProvider_Send_TextWrappedInTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/phone-123/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		bodyBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var reqBody waSendRequestBody
		require.NoError(t, json.Unmarshal(bodyBytes, &reqBody))
		assert.Equal(t, "whatsapp", reqBody.MessagingProduct)
		assert.Equal(t, "15551234567", reqBody.To)
		// Text sends go out as the approved template, never as a literal body.
		assert.Equal(t, "template", reqBody.Type)
		require.NotNil(t, reqBody.Template)
		assert.Equal(t, "hello_world", reqBody.Template.Name)
		assert.Equal(t, "en_US", reqBody.Template.Language.Code)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messaging_product": "whatsapp",
			"messages":          []map[string]string{{"id": "wamid.test123"}},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "test-token",
		PhoneNumberID: "phone-123",
	}, server.Client())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		InternalMessageID: "internal-1",
		Recipient:         "15551234567",
		Kind:              core_domain.KindText,
		Content:           "this body is intentionally not transmitted",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.IsSuccess)
	assert.Equal(t, "wamid.test123", resp.ProviderMessageID)
	assert.Equal(t, "SENT_WHATSAPP_200", resp.ProviderStatus)
	assert.Empty(t, resp.ErrorMessage)
}

func TestWhatsAppProvider_Send_NamedTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody waSendRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "template", reqBody.Type)
		require.NotNil(t, reqBody.Template)
		assert.Equal(t, "order_shipped", reqBody.Template.Name)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.tmpl1"}},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "tok",
		PhoneNumberID: "phone-123",
	}, server.Client())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		Recipient:    "15551234567",
		Kind:         core_domain.KindTemplate,
		TemplateName: "order_shipped",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess)
	assert.Equal(t, "wamid.tmpl1", resp.ProviderMessageID)
}

func TestWhatsAppProvider_Send_TemplateRequiresName(t *testing.T) {
	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{AccessToken: "tok"}, nil)

	_, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindTemplate,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template name is required")
}

func TestWhatsAppProvider_Send_MediaMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody waSendRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "image", reqBody.Type)
		require.NotNil(t, reqBody.Image)
		assert.Equal(t, "https://example.com/invoice.png", reqBody.Image.Link)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.media1"}},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "tok",
		PhoneNumberID: "phone-123",
	}, server.Client())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindMedia,
		MediaURL:  "https://example.com/invoice.png",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess)
}

func TestWhatsAppProvider_Send_200WithoutMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"messages": []interface{}{}})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "tok",
		PhoneNumberID: "phone-123",
	}, server.Client())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindText,
	})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, "FAILED_WHATSAPP_NO_MESSAGE_ID", resp.ProviderStatus)
	assert.Empty(t, resp.ProviderMessageID)
}

func TestWhatsAppProvider_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Invalid OAuth access token",
				"type":    "OAuthException",
				"code":    190,
			},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "expired",
		PhoneNumberID: "phone-123",
	}, server.Client())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindText,
	})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, "FAILED_WHATSAPP_401", resp.ProviderStatus)
	assert.Equal(t, "Invalid OAuth access token", resp.ErrorMessage)
}

func TestWhatsAppProvider_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := server.Client()
	server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:    server.URL,
		AccessToken:   "tok",
		PhoneNumberID: "phone-123",
	}, client)

	_, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindText,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request to WhatsApp")
}

func TestWhatsAppProvider_Send_MissingAccessToken(t *testing.T) {
	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{}, nil)

	_, err := p.Send(context.Background(), SendRequestDetails{
		Recipient: "15551234567",
		Kind:      core_domain.KindText,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Contains(t, err.Error(), "access token is not configured")
}

func TestWhatsAppProvider_ListTemplates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/waba-9/message_templates", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"name": "hello_world", "language": "en_US", "category": "UTILITY", "status": "APPROVED"},
				{"name": "order_shipped", "language": "en_US", "category": "UTILITY", "status": "APPROVED"},
			},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
		APIBaseURL:        server.URL,
		AccessToken:       "tok",
		BusinessAccountID: "waba-9",
	}, server.Client())

	templates, err := p.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "hello_world", templates[0].Name)
	assert.Equal(t, "APPROVED", templates[1].Status)
}

func TestWhatsAppProvider_TestConnection(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/phone-123/whatsapp_business_profile", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
		}))
		defer server.Close()

		p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
			APIBaseURL:    server.URL,
			AccessToken:   "tok",
			PhoneNumberID: "phone-123",
		}, server.Client())
		assert.NoError(t, p.TestConnection(context.Background()))
	})

	t.Run("BadCredentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		p := NewWhatsAppProvider(testLogger(), WhatsAppConfig{
			APIBaseURL:    server.URL,
			AccessToken:   "bad",
			PhoneNumberID: "phone-123",
		}, server.Client())
		err := p.TestConnection(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})
}
