package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	openAIModel   = "gpt-4o-mini"

	// Cerebras serves the same chat completions wire format.
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return newOpenAICompatible(apiKey, openAIChatURL, orDefault(model, openAIModel))
}

func NewCerebrasClient(apiKey, model string) *OpenAIClient {
	return newOpenAICompatible(apiKey, cerebrasAPIURL, orDefault(model, cerebrasModel))
}

func newOpenAICompatible(apiKey, url, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:       apiKey,
		url:          url,
		model:        model,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) buildRequest(ctx context.Context, req domain.CompletionRequest, stream bool) (*http.Request, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: domain.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	// json_object mode requires the prompt to ask for a JSON object.
	if req.JSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	httpReq, err := c.buildRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	httpReq, err := c.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		err := readSSE(resp.Body, func(data []byte) (bool, error) {
			if string(data) == "[DONE]" {
				return true, nil
			}
			var chunk chatStreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				return false, fmt.Errorf("unmarshal chat stream chunk: %w", err)
			}
			if chunk.Error != nil {
				return false, fmt.Errorf("chat API error: %s", chunk.Error.Message)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, domain.StreamChunk{Delta: choice.Delta.Content}) {
					return true, nil
				}
			}
			return false, nil
		})
		if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			send(ctx, out, domain.StreamChunk{Err: err})
		}
	}()

	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
