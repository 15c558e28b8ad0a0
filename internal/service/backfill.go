package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// BackfillBatchSize is the most guidelines embedded per run.
	BackfillBatchSize = 100
	// BackfillParallelism bounds concurrent embedding calls.
	BackfillParallelism = 4
	backfillRunTimeout  = 4 * time.Minute
)

// BackfillService embeds enabled guidelines that have no embedding yet.
type BackfillService struct {
	store    domain.GuidelineStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *rcron.Cron
	running atomic.Bool
}

func NewBackfillService(store domain.GuidelineStore, embedder domain.EmbeddingClient, logger *zap.Logger) *BackfillService {
	return &BackfillService{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// BackfillResult summarizes one run.
type BackfillResult struct {
	Pending  int `json:"pending"`
	Embedded int `json:"embedded"`
	// Skipped counts guidelines whose condition changed while their
	// embedding was being computed. They stay pending.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RunOnce embeds one batch of guidelines missing an embedding. Individual
// failures are logged and counted; only listing failures are returned.
func (s *BackfillService) RunOnce(ctx context.Context) (BackfillResult, error) {
	pending, err := s.store.ListMissingEmbedding(ctx, BackfillBatchSize)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list guidelines missing embedding: %w", err)
	}

	var embedded, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BackfillParallelism)
	for _, gl := range pending {
		g.Go(func() error {
			stored, err := s.embedOne(gctx, gl)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("failed to backfill guideline embedding",
					zap.String("guideline_id", gl.ID),
					zap.Error(err),
				)
				return nil
			}
			if !stored {
				skipped.Add(1)
				s.logger.Info("guideline condition changed during backfill, skipped",
					zap.String("guideline_id", gl.ID),
				)
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := BackfillResult{
		Pending:  len(pending),
		Embedded: int(embedded.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
	if res.Pending > 0 {
		s.logger.Info("embedding backfill finished",
			zap.Int("pending", res.Pending),
			zap.Int("embedded", res.Embedded),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return res, ctx.Err()
}

func (s *BackfillService) embedOne(ctx context.Context, g domain.Guideline) (bool, error) {
	embedding, err := s.embedder.Embed(ctx, g.Condition)
	if err != nil {
		return false, fmt.Errorf("embed condition: %w", err)
	}
	if len(embedding) == 0 {
		return false, fmt.Errorf("embed condition: empty vector")
	}
	return s.store.SetEmbedding(ctx, g.ID, g.Condition, embedding)
}

// Start schedules RunOnce on the given cron spec. Overlapping runs are
// skipped.
func (s *BackfillService) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("backfill already started")
	}

	c := rcron.New()
	_, err := c.AddFunc(schedule, func() {
		if !s.running.CompareAndSwap(false, true) {
			s.logger.Debug("previous backfill still running, skipping")
			return
		}
		defer s.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), backfillRunTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("embedding backfill failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("embedding backfill scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop cancels the schedule and waits for a running job to finish.
func (s *BackfillService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}
