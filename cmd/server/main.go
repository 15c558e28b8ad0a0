package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/conductor/internal/api"
	"github.com/Harshitk-cp/conductor/internal/buildconfig"
	"github.com/Harshitk-cp/conductor/internal/config"
	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/events"
	"github.com/Harshitk-cp/conductor/internal/logger"
	"github.com/Harshitk-cp/conductor/internal/store"
	"github.com/Harshitk-cp/conductor/internal/tracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(config.LogLevel(), config.LogFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting conductor", zap.String("version", buildconfig.Current().String()))

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := tracer.Init(ctx, config.OTelEnabled(), config.OTelEndpoint(), log)

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}
	log.Info("connected to database")

	sessions, closeSessions, err := newSessionStore(ctx, pool, log)
	if err != nil {
		log.Fatal("failed to set up session store", zap.Error(err))
	}
	defer closeSessions()

	var publisher domain.EventPublisher = events.Noop{}
	if url := config.NATSURL(); url != "" {
		natsPub, err := events.NewNATSPublisher(url, log)
		if err != nil {
			log.Warn("NATS unavailable, turn events disabled", zap.Error(err))
		} else {
			defer natsPub.Close()
			publisher = natsPub
			log.Info("publishing turn events", zap.String("subject", events.SubjectTurnComplete))
		}
	}

	llmClient, embeddingClient, err := api.NewClients(ctx, log)
	if err != nil {
		log.Fatal("failed to initialize model clients", zap.Error(err))
	}

	app := api.NewApp(ctx, api.Deps{
		DB:         pool,
		Guidelines: store.NewGuidelineStore(pool),
		Sessions:   sessions,
		Publisher:  publisher,
		LLM:        llmClient,
		Embedder:   embeddingClient,
	}, log)

	if err := app.Backfill.Start(config.EmbeddingBackfillSchedule()); err != nil {
		log.Fatal("failed to schedule embedding backfill", zap.Error(err))
	}

	addr := config.ServerAddr()
	// No WriteTimeout: chat responses are long-lived event streams.
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	app.Backfill.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
}

// newSessionStore builds the backend named by SESSION_BACKEND. Postgres is
// fronted by a version-checked read-through cache. Redis is read directly.
func newSessionStore(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) (domain.SessionStore, func(), error) {
	ttl := config.SessionCacheTTL()
	backend := config.SessionBackend()

	switch backend {
	case "postgres":
		log.Info("session backend: postgres")
		return store.NewCachedSessionStore(store.NewSessionStore(pool), ttl), func() {}, nil

	case "redis":
		redisURL := config.RedisURL()
		if redisURL == "" {
			return nil, nil, errors.New("REDIS_URL is required for the redis session backend")
		}
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("failed to parse Redis URL, using it as address", zap.Error(err))
			opt = &redis.Options{Addr: redisURL}
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("failed to connect to Redis", zap.Error(err))
		}
		log.Info("session backend: redis")
		// Sessions idle for 30 days are dropped.
		sessions := store.NewRedisSessionStore(rdb, 30*24*time.Hour)
		return sessions, func() { _ = rdb.Close() }, nil

	case "memory":
		log.Warn("session backend: memory, sessions are lost on restart")
		return store.NewMemorySessionStore(0), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q (valid options: postgres, redis, memory)", backend)
	}
}
