package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
)

// MockProvider is a simulated messaging provider for testing and development.
type MockProvider struct {
	logger *slog.Logger
	name   core_domain.ProviderName
	// FailNext makes the next Send report a provider rejection.
	FailNext bool
}

// NewMockProvider creates a new MockProvider posing as the given provider name.
func NewMockProvider(logger *slog.Logger, name core_domain.ProviderName) *MockProvider {
	return &MockProvider{
		logger: logger.With("provider", string(name)+"-mock"),
		name:   name,
	}
}

func (p *MockProvider) GetName() core_domain.ProviderName {
	return p.name
}

func (p *MockProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	p.logger.InfoContext(ctx, "MockProvider: Send called",
		"message_id", details.InternalMessageID,
		"recipient", details.Recipient,
		"kind", details.Kind)

	if p.FailNext {
		p.FailNext = false
		errMsg := fmt.Sprintf("mock provider simulated failure for recipient %s", details.Recipient)
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_MOCK_500",
			ErrorMessage:   errMsg,
		}, nil
	}

	providerMsgID := "mock." + uuid.NewString()
	return &SendResponseDetails{
		ProviderMessageID: providerMsgID,
		IsSuccess:         true,
		ProviderStatus:    "SENT_MOCK_200",
		RawResponse:       fmt.Sprintf(`{"messages":[{"id":"%s"}]}`, providerMsgID),
	}, nil
}
