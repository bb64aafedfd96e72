package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBatchEmbedder struct {
	calls atomic.Int64
	dim   int
}

func (m *mockBatchEmbedder) ModelID() string { return "mock-model" }

func (m *mockBatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	dim := m.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func TestCachedClientCachesRepeatedQuery(t *testing.T) {
	inner := &mockBatchEmbedder{}
	cached := NewCachedClient(inner, 0)

	_, err := cached.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedClientOnlyCallsInnerForMisses(t *testing.T) {
	inner := &mockBatchEmbedder{}
	cached := NewCachedClient(inner, 0)

	_, err := cached.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	results, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int64(2), inner.calls.Load())
}
