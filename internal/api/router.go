package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/conductor/internal/api/handlers"
	mw "github.com/Harshitk-cp/conductor/internal/api/middleware"
	"github.com/Harshitk-cp/conductor/internal/buildconfig"
	"github.com/Harshitk-cp/conductor/internal/config"
	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/embedding"
	"github.com/Harshitk-cp/conductor/internal/llm"
	"github.com/Harshitk-cp/conductor/internal/service"
	"github.com/Harshitk-cp/conductor/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Pinger reports whether the primary database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the externally constructed collaborators of the app.
type Deps struct {
	DB         Pinger
	Guidelines domain.GuidelineStore
	Sessions   domain.SessionStore
	Publisher  domain.EventPublisher
	LLM        domain.LLMClient
	Embedder   domain.EmbeddingClient
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Engine    *service.Engine
	Backfill  *service.BackfillService
	metrics   mw.Metrics
	startTime time.Time
}

// NewClients builds the LLM and embedding clients named by config.
func NewClients(ctx context.Context, logger *zap.Logger) (domain.LLMClient, domain.EmbeddingClient, error) {
	llmProvider := config.LLMProvider()
	llmClient, err := llm.NewClient(ctx, llmProvider, config.LLMAPIKey(), config.LLMModel())
	if err != nil {
		return nil, nil, fmt.Errorf("LLM client: %w", err)
	}
	logger.Info("LLM client initialized", zap.String("provider", llmProvider))

	embeddingProvider := config.EmbeddingProvider()
	embeddingClient, err := embedding.NewClient(ctx, embeddingProvider, config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		return nil, nil, fmt.Errorf("embedding client: %w", err)
	}
	logger.Info("Embedding client initialized", zap.String("provider", embeddingProvider))

	return llmClient, embeddingClient, nil
}

func NewApp(ctx context.Context, deps Deps, logger *zap.Logger) *App {
	// Services
	sessionSvc := service.NewSessionService(deps.Sessions, logger)
	engine := service.NewEngine(
		deps.Embedder,
		service.NewRetriever(deps.Guidelines, config.MatchSimilarityThreshold(), config.MatchMaxCandidates(), logger),
		service.NewClassifier(deps.LLM, config.MatchHistoryTurns(), logger),
		service.NewGenerator(deps.LLM, logger),
		service.NewSupervisor(deps.LLM, logger),
		sessionSvc,
		domain.SupervisionMode(config.SupervisionMode()),
		logger,
	)
	if deps.Publisher != nil {
		engine.SetPublisher(deps.Publisher)
	}
	backfillSvc := service.NewBackfillService(deps.Guidelines, deps.Embedder, logger)

	// Handlers
	chatHandler := handlers.NewChatHandler(engine, logger)
	sessionHandler := handlers.NewSessionHandler(sessionSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Engine:    engine,
		Backfill:  backfillSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.metrics)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(ctx, config.RateLimitRPS(), config.RateLimitBurst()))

	// Unauthenticated
	r.Get("/health", healthHandler(deps.DB))
	r.Get("/version", versionHandler)
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKeys()))

		r.Post("/chat", chatHandler.Chat)
		r.Get("/sessions/{id}", sessionHandler.GetByID)
	})

	return app
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.Current())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.metrics.Requests.Load(),
			"error_count":    app.metrics.Errors.Load(),
			"in_flight":      app.metrics.InFlight.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"version":    buildconfig.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.GuidelineStore  = (*store.GuidelineStore)(nil)
	_ domain.SessionStore    = (*store.SessionStore)(nil)
	_ domain.SessionStore    = (*store.RedisSessionStore)(nil)
	_ domain.SessionStore    = (*store.MemorySessionStore)(nil)
	_ domain.SessionStore    = (*store.CachedSessionStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.GenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ domain.LLMClient       = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient       = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient       = (*llm.GeminiClient)(nil)
	_ domain.LLMClient       = (*llm.MockClient)(nil)
)
