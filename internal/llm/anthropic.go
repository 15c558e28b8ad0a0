package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
	anthropicMaxTokens   = 2048
)

type AnthropicClient struct {
	apiKey       string
	url          string
	model        string
	httpClient   *http.Client
	streamClient *http.Client
}

func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:       apiKey,
		url:          anthropicMessagesURL,
		model:        orDefault(model, anthropicModel),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float32            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *anthropicError `json:"error,omitempty"`
}

// anthropicStreamEvent covers the event payloads we act on:
// content_block_delta, message_stop and error.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthropicError `json:"error,omitempty"`
}

func (c *AnthropicClient) buildRequest(ctx context.Context, req domain.CompletionRequest, stream bool) (*http.Request, error) {
	system := req.System
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		// The Messages API takes system text out of band.
		if m.Role == domain.RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with JSON only.")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	httpReq, err := c.buildRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", result.Error.Message)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic API returned no content")
	}

	return strings.TrimSpace(sb.String()), nil
}

func (c *AnthropicClient) Stream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	httpReq, err := c.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		err := readSSE(resp.Body, func(data []byte) (bool, error) {
			var ev anthropicStreamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return false, fmt.Errorf("unmarshal anthropic stream event: %w", err)
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
					return false, nil
				}
				if !send(ctx, out, domain.StreamChunk{Delta: ev.Delta.Text}) {
					return true, nil
				}
			case "message_stop":
				return true, nil
			case "error":
				msg := "unknown error"
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				return false, fmt.Errorf("anthropic API error: %s", msg)
			}
			return false, nil
		})
		if err != nil && ctx.Err() == nil {
			send(ctx, out, domain.StreamChunk{Err: err})
		}
	}()

	return out, nil
}
