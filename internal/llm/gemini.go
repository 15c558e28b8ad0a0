package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.0-flash"

// GeminiClient uses the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: orDefault(model, geminiModel)}, nil
}

func (c *GeminiClient) prepare(req domain.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	system := req.System
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = strings.TrimSpace(system + "\n\n" + m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return contents, cfg
}

func (c *GeminiClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	contents, cfg := c.prepare(req)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no content")
	}
	return text, nil
}

func (c *GeminiClient) Stream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	contents, cfg := c.prepare(req)

	next, stop := iter.Pull2(c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg))

	// Pull the first response here so a failed call is reported to the
	// caller instead of as an in-band chunk.
	first, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, fmt.Errorf("gemini stream: %w", err)
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		defer stop()

		resp := first
		for ok {
			if text := resp.Text(); text != "" {
				if !send(ctx, out, domain.StreamChunk{Delta: text}) {
					return
				}
			}
			resp, err, ok = next()
			if ok && err != nil {
				if ctx.Err() == nil {
					send(ctx, out, domain.StreamChunk{Err: fmt.Errorf("gemini stream: %w", err)})
				}
				return
			}
		}
	}()

	return out, nil
}
