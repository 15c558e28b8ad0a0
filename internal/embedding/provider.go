package embedding

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// NewClient creates the embedding client used for both guideline conditions
// and user messages. model may be empty for the provider default. Every
// provider returns vectors of exactly Dimensions floats.
func NewClient(ctx context.Context, provider, apiKey, model string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(apiKey, model), nil

	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini embedding provider")
		}
		return NewGenAIClient(ctx, apiKey, model)

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, gemini, mock)", provider)
	}
}
