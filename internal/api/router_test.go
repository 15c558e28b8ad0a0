package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/embedding"
	"github.com/Harshitk-cp/conductor/internal/llm"
	"github.com/Harshitk-cp/conductor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type emptyGuidelines struct{}

func (emptyGuidelines) Upsert(context.Context, *domain.Guideline) error { return nil }
func (emptyGuidelines) GetByID(context.Context, string) (*domain.Guideline, error) {
	return nil, store.ErrNotFound
}
func (emptyGuidelines) List(context.Context) ([]domain.Guideline, error) { return nil, nil }
func (emptyGuidelines) FindCandidates(context.Context, domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	return nil, nil
}
func (emptyGuidelines) ListMissingEmbedding(context.Context, int) ([]domain.Guideline, error) {
	return nil, nil
}
func (emptyGuidelines) SetEmbedding(context.Context, string, string, []float32) (bool, error) {
	return true, nil
}

func newTestApp(t *testing.T, db Pinger) *App {
	t.Helper()
	t.Setenv("API_KEYS", "test-key")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewApp(ctx, Deps{
		DB:         db,
		Guidelines: emptyGuidelines{},
		Sessions:   store.NewMemorySessionStore(time.Hour),
		LLM:        llm.NewMockClient(),
		Embedder:   embedding.NewMockClient(),
	}, zap.NewNop())
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, pinger{})
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestApp(t, pinger{err: errors.New("db down")})
	rec = httptest.NewRecorder()
	down.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVersion(t *testing.T) {
	app := newTestApp(t, pinger{})
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dev", body["version"])
}

func TestChatRequiresAPIKey(t *testing.T) {
	app := newTestApp(t, pinger{})
	body := `{"messages":[{"role":"user","content":"hi"}]}`

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data: {"content":"`+llm.DefaultStreamText+`"}`)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func TestMetricsCountsRequests(t *testing.T) {
	app := newTestApp(t, pinger{})
	app.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["request_count"])
}
