package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"go.uber.org/zap"
)

var ErrGeneration = errors.New("response generation failed")

// DefaultResponseTemperature is used for draft generation.
const DefaultResponseTemperature float32 = 0.7

// Generator produces the draft reply as a stream of text increments.
type Generator struct {
	llm    domain.LLMClient
	logger *zap.Logger
}

func NewGenerator(llmClient domain.LLMClient, logger *zap.Logger) *Generator {
	return &Generator{llm: llmClient, logger: logger}
}

// Generate starts the draft stream for the given instruction block and full
// conversation. A failure before the first increment is returned as
// ErrGeneration. The returned channel is drained by exactly one reader and
// closes when the reply ends or ctx is cancelled.
func (g *Generator) Generate(ctx context.Context, instructions string, history []domain.Message) (<-chan domain.StreamChunk, error) {
	messages := make([]domain.Message, 0, len(history))
	for _, m := range history {
		// The assembled instructions are the only system prompt.
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}

	ch, err := g.llm.Stream(ctx, domain.CompletionRequest{
		System:      BuildSystemPrompt(instructions),
		Messages:    messages,
		Temperature: DefaultResponseTemperature,
	})
	if err != nil {
		g.logger.Error("draft generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return ch, nil
}
