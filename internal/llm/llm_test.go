package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan domain.StreamChunk) (string, error) {
	t.Helper()
	var sb strings.Builder
	var err error
	for c := range ch {
		if c.Err != nil {
			err = c.Err
			continue
		}
		sb.WriteString(c.Delta)
	}
	return sb.String(), err
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{"  \n{}\n ", `{}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in))
	}
}

func TestReadSSE(t *testing.T) {
	body := "event: message\ndata: one\n\n: comment\ndata:two\n\ndata: \n\ndata: [DONE]\n\ndata: after\n"

	var got []string
	err := readSSE(strings.NewReader(body), func(data []byte) (bool, error) {
		if string(data) == "[DONE]" {
			return true, nil
		}
		got = append(got, string(data))
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestReadSSETruncated(t *testing.T) {
	var got []string
	err := readSSE(strings.NewReader("data: one\n\ndata: two\n\n"), func(data []byte) (bool, error) {
		got = append(got, string(data))
		return false, nil
	})
	assert.ErrorIs(t, err, ErrStreamTruncated)
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestReadSSECallbackError(t *testing.T) {
	boom := errors.New("boom")
	err := readSSE(strings.NewReader("data: x\ndata: y\n"), func([]byte) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func streamServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStream(t *testing.T) {
	srv := streamServer(t,
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`[DONE]`,
	)
	c := newOpenAICompatible("key", srv.URL, "test-model")

	ch, err := c.Stream(context.Background(), domain.CompletionRequest{
		System:   "be nice",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestOpenAIStreamInBandError(t *testing.T) {
	srv := streamServer(t,
		`{"choices":[{"delta":{"content":"Hi"}}]}`,
		`{"error":{"message":"overloaded"}}`,
	)
	c := newOpenAICompatible("key", srv.URL, "test-model")

	ch, err := c.Stream(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)

	text, err := collect(t, ch)
	assert.Equal(t, "Hi", text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAIStreamWithoutDoneIsError(t *testing.T) {
	srv := streamServer(t,
		`{"choices":[{"delta":{"content":"Half a sent"}}]}`,
	)
	c := newOpenAICompatible("key", srv.URL, "test-model")

	ch, err := c.Stream(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)

	text, err := collect(t, ch)
	assert.Equal(t, "Half a sent", text)
	assert.ErrorIs(t, err, ErrStreamTruncated)
}

func TestAnthropicStreamWithoutStopIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`+"\n\n")
	}))
	defer srv.Close()

	c := NewAnthropicClient("key", "")
	c.url = srv.URL

	ch, err := c.Stream(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)

	text, err := collect(t, ch)
	assert.Equal(t, "Hi", text)
	assert.ErrorIs(t, err, ErrStreamTruncated)
}

func TestOpenAIStreamBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newOpenAICompatible("key", srv.URL, "test-model")
	_, err := c.Stream(context.Background(), domain.CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAICompleteJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"ok\":true}  "}}]}`))
	}))
	defer srv.Close()

	c := newOpenAICompatible("key", srv.URL, "test-model")
	out, err := c.Complete(context.Background(), domain.CompletionRequest{System: "sys", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestMockClientScripts(t *testing.T) {
	m := NewMockClient()
	m.CompleteResponses = []MockResponse{{Text: "a"}, {Err: errors.New("x")}}
	m.StreamResponses = []MockStream{{Chunks: []string{"p", "q"}, MidErr: errors.New("mid")}}

	out, err := m.Complete(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	_, err = m.Complete(context.Background(), domain.CompletionRequest{})
	assert.Error(t, err)
	_, err = m.Complete(context.Background(), domain.CompletionRequest{})
	assert.Error(t, err, "last response repeats")

	ch, err := m.Stream(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)
	text, err := collect(t, ch)
	assert.Equal(t, "pq", text)
	assert.EqualError(t, err, "mid")

	assert.Len(t, m.CompleteCalls, 3)
	assert.Len(t, m.StreamCalls, 1)
}

func TestMockClientDefaults(t *testing.T) {
	m := NewMockClient()

	out, err := m.Complete(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	ch, err := m.Stream(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, DefaultStreamText, text)
}
