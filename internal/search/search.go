// Package search implements the Query Service: embed a query, search the
// vector store, and return ranked rows. It never blocks on indexing and
// shares only read-only access to the Vector Store Writer.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/foldermind/docindex/internal/store"
)

// DefaultK is the default number of results returned when callers don't
// specify one.
const DefaultK = 10

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Embedder is the subset of the Embedder Service Client the Query Service
// needs: turning a query string into a normalized vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the subset of the Vector Store Writer the Query Service needs.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, k int) ([]store.SearchResult, error)
}

// Result is a single ranked query result.
type Result struct {
	ID     string
	Path   string
	Page   int
	Offset int
	Text   string
	Title  string
	Score  float32
}

// Service implements the Query Service's single operation.
type Service struct {
	embedder Embedder
	searcher Searcher

	// queryPrefix, if non-empty, is prepended to the query text before
	// embedding — some models expect a task instruction for queries that
	// differs from how documents were embedded.
	queryPrefix string
}

// Option configures a Service.
type Option func(*Service)

// WithQueryPrefix sets a model-specific instruction prefix prepended to
// every query before embedding.
func WithQueryPrefix(prefix string) Option {
	return func(s *Service) { s.queryPrefix = prefix }
}

// New constructs a Service. embedder and searcher must be non-nil.
func New(embedder Embedder, searcher Searcher, opts ...Option) (*Service, error) {
	if embedder == nil || searcher == nil {
		return nil, ErrNilDependency
	}
	s := &Service{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Query embeds q, searches the vector store for the k nearest chunks, and
// returns them in score-descending order. k defaults to DefaultK when <= 0.
func (s *Service) Query(ctx context.Context, q string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultK
	}

	text := q
	if s.queryPrefix != "" {
		text = s.queryPrefix + q
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query text", len(vectors))
	}

	rows, err := s.searcher.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, len(rows))
	for i, row := range rows {
		results[i] = Result{
			ID:     row.ID,
			Path:   row.Path,
			Page:   row.Page,
			Offset: row.Offset,
			Text:   row.Text,
			Title:  row.Title,
			Score:  row.Score,
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}
