package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guidelineYAML = `
guidelines:
  - id: refund-policy
    title: Refund policy
    condition: The customer asks about returning or refunding an order
    action: Explain the 30-day refund policy and offer to start a return.
    priority: 10
    category: billing
  - id: small-talk
    condition: The user makes small talk
    action: Reply briefly and steer back to how you can help.
    enabled: false
`

func TestLoadGuidelineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guidelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(guidelineYAML), 0o600))

	got, err := LoadGuidelineFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "refund-policy", got[0].ID)
	assert.Equal(t, 10, got[0].Priority)
	assert.Equal(t, "billing", got[0].Category)
	assert.True(t, got[0].Enabled)

	assert.Equal(t, "small-talk", got[1].Title)
	assert.False(t, got[1].Enabled)
}

func TestParseGuidelines_Invalid(t *testing.T) {
	cases := map[string]struct {
		yaml string
		err  error
	}{
		"missing id":        {"guidelines:\n  - condition: c\n    action: a\n", ErrGuidelineIDMissing},
		"missing condition": {"guidelines:\n  - id: x\n    action: a\n", ErrGuidelineConditionMissing},
		"missing action":    {"guidelines:\n  - id: x\n    condition: c\n", ErrGuidelineActionMissing},
		"duplicate id": {
			"guidelines:\n  - id: x\n    condition: c\n    action: a\n  - id: x\n    condition: d\n    action: b\n",
			ErrDuplicateGuidelineID,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGuidelines([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := ParseGuidelines([]byte("guidelines: [this is: not valid"))
	assert.Error(t, err)
}

func TestGuidelineService_ImportEmbedsNewGuidelines(t *testing.T) {
	gs := newFakeGuidelineStore()
	emb := embedding.NewMockClient()
	svc := NewGuidelineService(gs, emb, testLogger())
	ctx := context.Background()

	res, err := svc.Import(ctx, []domain.Guideline{
		{ID: "a", Condition: "asks for refund", Action: "explain policy", Enabled: true},
		{ID: "b", Condition: "disabled", Action: "noop", Enabled: false},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, 1, res.Embedded)
	assert.Empty(t, res.Pending)

	a, _ := gs.GetByID(ctx, "a")
	assert.True(t, a.HasEmbedding())
	assert.Equal(t, "a", a.Title)
}

func TestGuidelineService_ConditionChangeReembeds(t *testing.T) {
	gs := newFakeGuidelineStore()
	emb := embedding.NewMockClient()
	svc := NewGuidelineService(gs, emb, testLogger())
	ctx := context.Background()

	_, err := svc.Import(ctx, []domain.Guideline{{ID: "a", Condition: "first wording", Action: "x", Enabled: true}})
	require.NoError(t, err)

	// Same condition: embedding kept, no new embed call.
	_, err = svc.Import(ctx, []domain.Guideline{{ID: "a", Condition: "first wording", Action: "y", Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"first wording"}, emb.Calls)

	_, err = svc.Import(ctx, []domain.Guideline{{ID: "a", Condition: "second wording", Action: "y", Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"first wording", "second wording"}, emb.Calls)
}

func TestGuidelineService_ImportLeavesFailuresPending(t *testing.T) {
	gs := newFakeGuidelineStore()
	emb := embedding.NewMockClient()
	emb.Err = errors.New("quota")
	svc := NewGuidelineService(gs, emb, testLogger())
	ctx := context.Background()

	res, err := svc.Import(ctx, []domain.Guideline{{ID: "a", Condition: "c", Action: "x", Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Pending)

	missing, err := gs.ListMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestGuidelineService_ImportSkipsEmbeddingOfReplacedCondition(t *testing.T) {
	gs := newFakeGuidelineStore()
	ctx := context.Background()
	hooked := &hookEmbedder{inner: embedding.NewMockClient(), before: func(text string) {
		if text != "old wording" {
			return
		}
		changed := domain.Guideline{ID: "a", Condition: "new wording", Action: "x", Enabled: true}
		assert.NoError(t, gs.Upsert(ctx, &changed))
	}}
	svc := NewGuidelineService(gs, hooked, testLogger())

	res, err := svc.Import(ctx, []domain.Guideline{{ID: "a", Condition: "old wording", Action: "x", Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Embedded)
	assert.Equal(t, []string{"a"}, res.Pending)

	stored, err := gs.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new wording", stored.Condition)
	assert.False(t, stored.HasEmbedding())
}
