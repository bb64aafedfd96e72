package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foldermind/docindex/internal/ierr"
)

// conflictRetryDelay is how long the Writer sleeps before retrying a write
// once after a detected commit conflict.
const conflictRetryDelay = 50 * time.Millisecond

// writeJob is a closure enqueued on the Writer's single in-process write
// queue, executed strictly in order so the underlying store never sees
// concurrent mutations.
type writeJob struct {
	run  func() error
	done chan error
}

// Writer serializes every mutation to the chunks table and the VectorStore
// through one write queue, implementing the Vector Store Writer component.
type Writer struct {
	chunks *ChunksRepo
	vector VectorStore

	compactionOrphanRatio float64
	compactionCountTrigger int

	jobs chan writeJob

	mu      sync.Mutex
	started bool
}

// NewWriter constructs a Writer over an already-open ChunksRepo and
// VectorStore. Run must be called to start draining the write queue.
func NewWriter(chunks *ChunksRepo, vector VectorStore, compactionOrphanRatio float64, compactionCountTrigger int) *Writer {
	return &Writer{
		chunks:                 chunks,
		vector:                 vector,
		compactionOrphanRatio:  compactionOrphanRatio,
		compactionCountTrigger: compactionCountTrigger,
		jobs:                   make(chan writeJob, 64),
	}
}

// Run drains the write queue until ctx is canceled. It must run in its own
// goroutine; all mutating methods suspend their caller until their job
// reaches the front of the queue and executes.
func (w *Writer) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-w.jobs:
			job.done <- w.runWithConflictRetry(job.run)
		}
	}
}

// runWithConflictRetry executes fn; on a detected commit-conflict error it
// retries once after conflictRetryDelay, surfacing any further conflict as
// fatal per spec.
func (w *Writer) runWithConflictRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isConflictError(err) {
		return err
	}

	slog.Warn("vector store write conflict, retrying once", slog.String("error", err.Error()))
	time.Sleep(conflictRetryDelay)

	if err := fn(); err != nil {
		return ierr.StoreConflict("store write conflict persisted after retry", err)
	}
	return nil
}

func isConflictError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy") || strings.Contains(msg, "conflict")
}

// enqueue submits fn to the write queue and blocks until it runs or ctx is
// canceled.
func (w *Writer) enqueue(ctx context.Context, fn func() error) error {
	job := writeJob{run: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertChunks persists rows to the chunks table and their vectors to the
// VectorStore via a merge-on-id semantic: when id exists, replace; else
// insert. Both writes happen as one serialized job.
func (w *Writer) UpsertChunks(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		vectors[i] = row.Vector
	}

	return w.enqueue(ctx, func() error {
		if err := w.chunks.Upsert(rows); err != nil {
			return fmt.Errorf("upsert chunk rows: %w", err)
		}
		if err := w.vector.Add(ctx, ids, vectors); err != nil {
			return fmt.Errorf("upsert chunk vectors: %w", err)
		}
		w.maybeCompact()
		return nil
	})
}

// DeleteByPath removes every chunk row and vector for path.
func (w *Writer) DeleteByPath(ctx context.Context, path string) error {
	return w.enqueue(ctx, func() error {
		ids, err := w.chunks.DeleteByPath(path)
		if err != nil {
			return fmt.Errorf("delete chunk rows for %s: %w", path, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := w.vector.Delete(ctx, ids); err != nil {
			return fmt.Errorf("delete chunk vectors for %s: %w", path, err)
		}
		return nil
	})
}

// Search embeds-free: callers supply an already-computed query vector (the
// Query Service owns calling the Embedder). Returns k ranked rows.
func (w *Writer) Search(ctx context.Context, queryVector []float32, k int) ([]SearchResult, error) {
	vectorResults, err := w.vector.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(vectorResults) == 0 {
		return nil, nil
	}

	ids := make([]string, len(vectorResults))
	for i, vr := range vectorResults {
		ids[i] = vr.ID
	}

	rowsByID, err := w.chunks.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk rows: %w", err)
	}

	results := make([]SearchResult, 0, len(vectorResults))
	for _, vr := range vectorResults {
		row, ok := rowsByID[vr.ID]
		if !ok {
			// Vector and chunk tables disagreed (e.g. a delete raced with a
			// search); skip rather than return a textless result.
			continue
		}
		results = append(results, SearchResult{
			ID:     row.ID,
			Path:   row.Path,
			Page:   row.Page,
			Offset: row.Offset,
			Text:   row.Text,
			Title:  row.Title,
			Type:   row.Type,
			Score:  vr.Score,
		})
	}
	return results, nil
}

// Count returns the number of chunk rows currently in the vector store.
func (w *Writer) Count() int {
	return w.vector.Count()
}

// CreateAnnIndex opportunistically rebuilds the ANN graph. A failure is
// logged but non-fatal, per spec.
func (w *Writer) CreateAnnIndex(ctx context.Context) error {
	return w.enqueue(ctx, func() error {
		if err := w.vector.Compact(); err != nil {
			slog.Warn("ann index compaction failed, continuing uncompacted", slog.String("error", err.Error()))
			return nil
		}
		return nil
	})
}

// maybeCompact triggers CreateAnnIndex-equivalent compaction when the store
// has grown past compactionCountTrigger or its lazily-deleted orphan ratio
// has grown past compactionOrphanRatio (SPEC_FULL §5.5). Called from
// within an already-running write job, so it compacts inline rather than
// re-enqueuing.
func (w *Writer) maybeCompact() {
	statser, ok := w.vector.(interface{ Stats() HNSWStats })
	if !ok {
		if w.compactionCountTrigger > 0 && w.vector.Count() >= w.compactionCountTrigger {
			w.compactInline()
		}
		return
	}

	stats := statser.Stats()
	if w.compactionCountTrigger > 0 && stats.GraphNodes >= w.compactionCountTrigger {
		w.compactInline()
		return
	}
	if stats.GraphNodes > 0 && w.compactionOrphanRatio > 0 {
		ratio := float64(stats.Orphans) / float64(stats.GraphNodes)
		if ratio >= w.compactionOrphanRatio {
			w.compactInline()
		}
	}
}

func (w *Writer) compactInline() {
	if err := w.vector.Compact(); err != nil {
		slog.Warn("ann index compaction failed, continuing uncompacted", slog.String("error", err.Error()))
	}
}

// EnsureSchema compares the persisted schema version against
// CurrentSchemaVersion. On a mismatch it wipes the chunks table (preserving
// the file-status table) and persists the new version; this is the only
// supported migration path when the embedding dimension changes.
func EnsureSchema(chunks *ChunksRepo) (wiped bool, err error) {
	version, err := chunks.SchemaVersion()
	if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	if version == CurrentSchemaVersion {
		return false, nil
	}

	rows, err := chunks.Count()
	if err != nil {
		return false, fmt.Errorf("count chunk rows: %w", err)
	}
	if version != 0 || rows > 0 {
		if err := chunks.Wipe(); err != nil {
			return false, ierr.StoreSchemaMismatch("failed to wipe chunks table on schema mismatch", err)
		}
		wiped = true
	}
	if err := chunks.SetSchemaVersion(CurrentSchemaVersion); err != nil {
		return wiped, fmt.Errorf("persist schema version: %w", err)
	}
	return wiped, nil
}
