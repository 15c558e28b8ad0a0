package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockDimensions is the vector size produced by MockClient.
const MockDimensions = Dimensions

// MockClient is a deterministic embedding client for tests and local runs.
// Each lowercase word is hashed into a bucket, so texts sharing words get
// similar vectors. Set Vectors to pin exact outputs per text.
type MockClient struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	Calls   []string
}

func NewMockClient() *MockClient {
	return &MockClient{Vectors: make(map[string][]float32)}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, text)
	if c.Err != nil {
		return nil, c.Err
	}
	if v, ok := c.Vectors[text]; ok {
		return v, nil
	}
	return bagOfWords(text), nil
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, MockDimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?;:\"'")))
		vec[h.Sum32()%MockDimensions] += 1
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x * x)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
