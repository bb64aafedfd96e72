package store

import (
	"context"
	"fmt"
	"sync"
)

// FakeVectorStore is an in-memory VectorStore for tests exercising the
// Writer's write-queue and retry behavior without a real HNSW graph.
type FakeVectorStore struct {
	mu      sync.Mutex
	vectors map[string][]float32

	// AddErr, if set, is returned by the next call to Add and then cleared.
	AddErr error

	CompactCalls int
}

func NewFakeVectorStore() *FakeVectorStore {
	return &FakeVectorStore{vectors: make(map[string][]float32)}
}

func (f *FakeVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		err := f.AddErr
		f.AddErr = nil
		return err
	}
	for i, id := range ids {
		f.vectors[id] = vectors[i]
	}
	return nil
}

func (f *FakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]*VectorResult, 0, len(f.vectors))
	for id := range f.vectors {
		results = append(results, &VectorResult{ID: id, Distance: 0, Score: 1})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *FakeVectorStore) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.vectors, id)
	}
	return nil
}

func (f *FakeVectorStore) AllIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.vectors))
	for id := range f.vectors {
		ids = append(ids, id)
	}
	return ids
}

func (f *FakeVectorStore) Contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vectors[id]
	return ok
}

func (f *FakeVectorStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

func (f *FakeVectorStore) Compact() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CompactCalls++
	return nil
}

func (f *FakeVectorStore) Save(path string) error { return nil }
func (f *FakeVectorStore) Load(path string) error { return nil }
func (f *FakeVectorStore) Close() error           { return nil }

var _ VectorStore = (*FakeVectorStore)(nil)

// conflictThenOKVectorStore fails its first Add with a lock-style error and
// succeeds thereafter, for exercising the Writer's retry-once policy.
type conflictThenOKVectorStore struct {
	*FakeVectorStore
	failuresLeft int
}

func newConflictThenOKVectorStore(failures int) *conflictThenOKVectorStore {
	return &conflictThenOKVectorStore{FakeVectorStore: NewFakeVectorStore(), failuresLeft: failures}
}

func (c *conflictThenOKVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return fmt.Errorf("database is locked")
	}
	return c.FakeVectorStore.Add(ctx, ids, vectors)
}
