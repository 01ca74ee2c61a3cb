package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

func TestMockProvider_Send(t *testing.T) {
	p := NewMockProvider(testLogger(), core_domain.ProviderWhatsApp)
	assert.Equal(t, core_domain.ProviderWhatsApp, p.GetName())

	resp, err := p.Send(context.Background(), SendRequestDetails{
		InternalMessageID: "rec-1",
		Recipient:         "15551234567",
		Kind:              core_domain.KindText,
		Content:           "hello",
	})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess)
	assert.True(t, strings.HasPrefix(resp.ProviderMessageID, "mock."))
	assert.Equal(t, "SENT_MOCK_200", resp.ProviderStatus)
	assert.Contains(t, resp.RawResponse, resp.ProviderMessageID)
}

func TestMockProvider_FailNextSimulatesRejection(t *testing.T) {
	p := NewMockProvider(testLogger(), core_domain.ProviderTwilio)
	p.FailNext = true

	resp, err := p.Send(context.Background(), SendRequestDetails{
		InternalMessageID: "rec-2",
		Recipient:         "15551234567",
		Kind:              core_domain.KindText,
	})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, "FAILED_MOCK_500", resp.ProviderStatus)
	assert.NotEmpty(t, resp.ErrorMessage)

	// One-shot: the next send succeeds again.
	resp, err = p.Send(context.Background(), SendRequestDetails{
		InternalMessageID: "rec-3",
		Recipient:         "15551234567",
		Kind:              core_domain.KindText,
	})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess)
}
