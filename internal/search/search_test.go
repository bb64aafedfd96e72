package search

import (
	"context"
	"errors"
	"testing"

	"github.com/foldermind/docindex/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector  []float32
	err     error
	lastIn  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.lastIn = texts
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vector}, nil
}

type fakeSearcher struct {
	results []store.SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, queryVector []float32, k int) ([]store.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestQueryReturnsRankedResultsDescendingByScore(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	searcher := &fakeSearcher{results: []store.SearchResult{
		{ID: "a", Text: "low score", Score: 0.2},
		{ID: "b", Text: "high score", Score: 0.9},
	}}

	svc, err := New(embedder, searcher)
	require.NoError(t, err)

	results, err := svc.Query(context.Background(), "hello", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, "a", results[1].ID)
}

func TestQueryDefaultsKWhenNonPositive(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{}
	svc, err := New(embedder, searcher)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), "hello", 0)
	require.NoError(t, err)
}

func TestQueryAppliesConfiguredPrefix(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{}
	svc, err := New(embedder, searcher, WithQueryPrefix("Instruct: search\nQuery: "))
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), "hello", 1)
	require.NoError(t, err)
	require.Len(t, embedder.lastIn, 1)
	assert.Equal(t, "Instruct: search\nQuery: hello", embedder.lastIn[0])
}

func TestQueryPropagatesEmbedderError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("sidecar down")}
	searcher := &fakeSearcher{}
	svc, err := New(embedder, searcher)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), "hello", 1)
	assert.Error(t, err)
}

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(nil, &fakeSearcher{})
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(&fakeEmbedder{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
