package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ErrGuidelineIDMissing        = errors.New("guideline id is required")
	ErrGuidelineConditionMissing = errors.New("guideline condition is required")
	ErrGuidelineActionMissing    = errors.New("guideline action is required")
	ErrDuplicateGuidelineID      = errors.New("duplicate guideline id")
)

// guidelineFile is the YAML layout accepted by LoadGuidelineFile.
type guidelineFile struct {
	Guidelines []guidelineEntry `yaml:"guidelines"`
}

type guidelineEntry struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Condition string `yaml:"condition"`
	Action    string `yaml:"action"`
	Priority  int    `yaml:"priority"`
	Category  string `yaml:"category"`
	Enabled   *bool  `yaml:"enabled"`
}

// LoadGuidelineFile reads guidelines from a YAML file. Entries are enabled
// unless they say otherwise.
func LoadGuidelineFile(path string) ([]domain.Guideline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGuidelines(data)
}

func ParseGuidelines(data []byte) ([]domain.Guideline, error) {
	var f guidelineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse guidelines: %w", err)
	}

	guidelines := make([]domain.Guideline, 0, len(f.Guidelines))
	seen := make(map[string]struct{}, len(f.Guidelines))
	for i, e := range f.Guidelines {
		g := domain.Guideline{
			ID:        strings.TrimSpace(e.ID),
			Title:     strings.TrimSpace(e.Title),
			Condition: strings.TrimSpace(e.Condition),
			Action:    strings.TrimSpace(e.Action),
			Priority:  e.Priority,
			Category:  strings.TrimSpace(e.Category),
			Enabled:   e.Enabled == nil || *e.Enabled,
		}
		if err := validateGuideline(&g); err != nil {
			return nil, fmt.Errorf("guideline %d: %w", i+1, err)
		}
		if _, dup := seen[g.ID]; dup {
			return nil, fmt.Errorf("guideline %d: %w: %s", i+1, ErrDuplicateGuidelineID, g.ID)
		}
		seen[g.ID] = struct{}{}
		guidelines = append(guidelines, g)
	}
	return guidelines, nil
}

func validateGuideline(g *domain.Guideline) error {
	switch {
	case g.ID == "":
		return ErrGuidelineIDMissing
	case g.Condition == "":
		return ErrGuidelineConditionMissing
	case g.Action == "":
		return ErrGuidelineActionMissing
	}
	if g.Title == "" {
		g.Title = g.ID
	}
	return nil
}

// GuidelineService is the operator-facing path for loading guidelines.
type GuidelineService struct {
	store    domain.GuidelineStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

func NewGuidelineService(store domain.GuidelineStore, embedder domain.EmbeddingClient, logger *zap.Logger) *GuidelineService {
	return &GuidelineService{store: store, embedder: embedder, logger: logger}
}

// ImportResult summarizes an import.
type ImportResult struct {
	Upserted int      `json:"upserted"`
	Embedded int      `json:"embedded"`
	Pending  []string `json:"pending,omitempty"`
}

// Import upserts guidelines by id. Guidelines left without an embedding,
// because they are new or their condition changed, are embedded right away;
// ones that fail to embed stay pending for the backfill job.
func (s *GuidelineService) Import(ctx context.Context, guidelines []domain.Guideline) (ImportResult, error) {
	var res ImportResult
	for i := range guidelines {
		g := guidelines[i]
		if err := validateGuideline(&g); err != nil {
			return res, fmt.Errorf("guideline %q: %w", g.ID, err)
		}
		if err := s.store.Upsert(ctx, &g); err != nil {
			return res, err
		}
		res.Upserted++

		if g.HasEmbedding() || !g.Enabled {
			continue
		}
		stored := false
		embedding, err := s.embedder.Embed(ctx, g.Condition)
		if err == nil && len(embedding) > 0 {
			stored, err = s.store.SetEmbedding(ctx, g.ID, g.Condition, embedding)
		}
		if err != nil || !stored {
			s.logger.Warn("guideline left without embedding", zap.String("guideline_id", g.ID), zap.Error(err))
			res.Pending = append(res.Pending, g.ID)
			continue
		}
		res.Embedded++
	}

	s.logger.Info("guidelines imported",
		zap.Int("upserted", res.Upserted),
		zap.Int("embedded", res.Embedded),
		zap.Int("pending", len(res.Pending)),
	)
	return res, nil
}

func (s *GuidelineService) List(ctx context.Context) ([]domain.Guideline, error) {
	return s.store.List(ctx)
}
