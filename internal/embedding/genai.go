package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const genAIModel = "gemini-embedding-001"

// GenAIClient embeds text with the Gemini embedding API.
type GenAIClient struct {
	client *genai.Client
	model  string
}

func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if model == "" {
		model = genAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(Dimensions)
	result, err := c.client.Models.EmbedContent(ctx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: &dims,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("genai returned no embeddings")
	}
	return checkDimensions(result.Embeddings[0].Values)
}
