package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

// MockResponse is one scripted Complete result.
type MockResponse struct {
	Text string
	Err  error
}

// MockStream is one scripted Stream result. Err fails the call before any
// chunk; MidErr is delivered in-band after Chunks.
type MockStream struct {
	Chunks []string
	Err    error
	MidErr error
}

// MockClient is a configurable LLM client for testing.
// Scripted responses are consumed in call order; once exhausted the last one
// repeats. With nothing scripted, Complete returns an empty JSON object and
// Stream returns DefaultStreamText as one chunk.
type MockClient struct {
	mu sync.Mutex

	CompleteResponses []MockResponse
	StreamResponses   []MockStream

	// Call tracking for assertions
	CompleteCalls []domain.CompletionRequest
	StreamCalls   []domain.CompletionRequest
}

const DefaultStreamText = "Mock reply."

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	idx := len(c.CompleteCalls)
	c.CompleteCalls = append(c.CompleteCalls, req)
	var r MockResponse
	if n := len(c.CompleteResponses); n > 0 {
		r = c.CompleteResponses[min(idx, n-1)]
	} else {
		r = MockResponse{Text: "{}"}
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

func (c *MockClient) Stream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, error) {
	c.mu.Lock()
	idx := len(c.StreamCalls)
	c.StreamCalls = append(c.StreamCalls, req)
	var s MockStream
	if n := len(c.StreamResponses); n > 0 {
		s = c.StreamResponses[min(idx, n-1)]
	} else {
		s = MockStream{Chunks: []string{DefaultStreamText}}
	}
	c.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range s.Chunks {
			if !send(ctx, out, domain.StreamChunk{Delta: chunk}) {
				return
			}
		}
		if s.MidErr != nil {
			send(ctx, out, domain.StreamChunk{Err: s.MidErr})
		}
	}()
	return out, nil
}

// Reset clears all scripted responses and recorded calls.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteResponses = nil
	c.StreamResponses = nil
	c.CompleteCalls = nil
	c.StreamCalls = nil
}
