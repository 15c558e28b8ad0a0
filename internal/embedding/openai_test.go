package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewOpenAIClient("key", "")
	c.url = srv.URL
	return c
}

func TestOpenAIEmbed(t *testing.T) {
	c := testOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openAIModel, req.Model)
		assert.Equal(t, Dimensions, req.Dimensions)
		assert.Equal(t, "refund please", req.Input)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": make([]float32, Dimensions)}},
		})
	})

	v, err := c.Embed(context.Background(), "refund please")
	require.NoError(t, err)
	assert.Len(t, v, Dimensions)
}

func TestOpenAIEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "bad key"},
		{"non json", http.StatusBadGateway, `upstream down`, "status 502"},
		{"no data", http.StatusOK, `{"data":[]}`, "no data"},
		{"wrong size", http.StatusOK, `{"data":[{"embedding":[0.1,0.2]}]}`, "2 dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
