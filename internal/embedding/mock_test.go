package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

func TestMockClientDeterministic(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	a, err := c.Embed(ctx, "I want a refund")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "I want a refund")
	require.NoError(t, err)

	assert.Len(t, a, MockDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(a, a)), 1e-5)
	assert.Equal(t, []string{"I want a refund", "I want a refund"}, c.Calls)
}

func TestMockClientSimilarity(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	q, _ := c.Embed(ctx, "how do I get a refund")
	near, _ := c.Embed(ctx, "The user asks about a refund")
	far, _ := c.Embed(ctx, "weather tomorrow in Paris")

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestMockClientOverrides(t *testing.T) {
	c := NewMockClient()
	c.Vectors["pinned"] = []float32{1, 0}

	v, err := c.Embed(context.Background(), "pinned")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)

	c.Err = errors.New("down")
	_, err = c.Embed(context.Background(), "anything")
	assert.EqualError(t, err, "down")
}

func TestMockClientEmptyText(t *testing.T) {
	v, err := NewMockClient().Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, float32(1), v[0])
}
