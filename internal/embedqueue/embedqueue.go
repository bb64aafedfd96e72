// Package embedqueue implements the Embedding Queue: the producer-consumer
// core that batches chunks for the Embedder Service Client, tracks per-file
// completion, and recovers in-flight work when the embedder restarts.
package embedqueue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foldermind/docindex/internal/chunk"
	"github.com/foldermind/docindex/internal/ierr"
)

// Config tunes batching and concurrency.
type Config struct {
	MaxQueueSize         int           // backpressure threshold for AddChunks
	EmbeddingBatchSize   int           // max chunks per batch
	MaxTokensPerBatch    int           // max estimated tokens per batch
	MaxConcurrentBatches int           // in-flight batch cap
	MaxRetries           int           // per-chunk retry cap before a batch is dropped
	RetryBackoff         time.Duration // linear back-off unit between batch retries
}

// DefaultConfig mirrors the defaults named in the embedding queue contract.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:         2000,
		EmbeddingBatchSize:   32,
		MaxTokensPerBatch:    8000,
		MaxConcurrentBatches: 1,
		MaxRetries:           3,
		RetryBackoff:         500 * time.Millisecond,
	}
}

// Item is a single chunk awaiting embedding.
type Item struct {
	Chunk     chunk.Chunk
	Path      string
	FileIndex int
	Retries   int
}

// Result pairs an Item with its computed embedding vector.
type Result struct {
	Item   Item
	Vector []float32
}

// Embedder is the narrow capability the queue needs from the Embedder
// Service Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchSink receives successfully embedded batches, handing them to the
// Vector Store Writer.
type BatchSink func(ctx context.Context, results []Result) error

// ProgressFunc is notified as chunks finish processing, successfully or not.
// err is nil for successes.
type ProgressFunc func(path string, fileIndex int, processed, total int, err error)

// estimateTokens implements the "ceil(chars / 2.5)" token estimate.
func estimateTokens(text string) int {
	return int(math.Ceil(float64(len([]rune(text))) / 2.5))
}

type fileTracker struct {
	total     int
	processed int
	done      chan struct{}
}

// Queue is the Embedding Queue: a FIFO of Items batched and submitted to an
// Embedder, with backpressure, retry, and restart recovery.
type Queue struct {
	cfg      Config
	embedder Embedder
	onBatch  BatchSink
	onProgress ProgressFunc

	mu            sync.Mutex
	items         []Item
	notEmpty      *sync.Cond
	notFull       *sync.Cond
	activeBatches map[string][]Item
	trackers      map[string]*fileTracker

	tokens chan struct{}
}

// New constructs an embedding Queue. onBatch is called synchronously from a
// worker goroutine for each successful batch; onProgress, if non-nil, is
// called for every processed chunk (success or permanent failure).
func New(cfg Config, embedder Embedder, onBatch BatchSink, onProgress ProgressFunc) *Queue {
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 1
	}
	q := &Queue{
		cfg:           cfg,
		embedder:      embedder,
		onBatch:       onBatch,
		onProgress:    onProgress,
		activeBatches: make(map[string][]Item),
		trackers:      make(map[string]*fileTracker),
		tokens:        make(chan struct{}, cfg.MaxConcurrentBatches),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	for i := 0; i < cfg.MaxConcurrentBatches; i++ {
		q.tokens <- struct{}{}
	}
	return q
}

func (q *Queue) trackerKey(path string, fileIndex int) string {
	return fmt.Sprintf("%s#%d", path, fileIndex)
}

// AddChunks enqueues chunks for path, blocking (backpressure) if the queue is
// already at MaxQueueSize. A file tracker is created to resolve the returned
// channel once every chunk has been processed (success or permanent
// failure).
func (q *Queue) AddChunks(ctx context.Context, path string, fileIndex int, chunks []chunk.Chunk) (<-chan struct{}, error) {
	cancelled := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(cancelled)
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	for q.cfg.MaxQueueSize > 0 && len(q.items) >= q.cfg.MaxQueueSize {
		select {
		case <-cancelled:
			q.mu.Unlock()
			return nil, ctx.Err()
		default:
		}
		q.notFull.Wait()
	}

	done := make(chan struct{})
	key := q.trackerKey(path, fileIndex)
	tracker := &fileTracker{total: len(chunks), done: done}
	q.trackers[key] = tracker
	if len(chunks) == 0 {
		close(done)
		delete(q.trackers, key)
		q.mu.Unlock()
		return done, nil
	}

	for _, c := range chunks {
		q.items = append(q.items, Item{Chunk: c, Path: path, FileIndex: fileIndex})
	}
	q.notEmpty.Signal()
	q.mu.Unlock()
	return done, nil
}

// calculateBatchSize greedily pulls chunks off the front of the queue while
// cumulative estimated tokens stay under MaxTokensPerBatch and the count
// stays under EmbeddingBatchSize, always taking at least one.
func (q *Queue) calculateBatchSize() []Item {
	if len(q.items) == 0 {
		return nil
	}
	limit := q.cfg.EmbeddingBatchSize
	if limit <= 0 {
		limit = 1
	}

	tokens := 0
	n := 0
	for n < len(q.items) && n < limit {
		t := estimateTokens(q.items[n].Chunk.Text)
		if n > 0 && q.cfg.MaxTokensPerBatch > 0 && tokens+t > q.cfg.MaxTokensPerBatch {
			break
		}
		tokens += t
		n++
	}
	if n == 0 {
		n = 1
	}

	batch := make([]Item, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	q.notFull.Signal()
	return batch
}

// Run drives the consumer loop until ctx is cancelled. Call it from a single
// dedicated goroutine; batches it dispatches run concurrently up to
// MaxConcurrentBatches.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.tokens:
		}

		q.mu.Lock()
		for len(q.items) == 0 {
			select {
			case <-done:
				q.mu.Unlock()
				q.tokens <- struct{}{}
				return ctx.Err()
			default:
			}
			q.notEmpty.Wait()
		}
		batch := q.calculateBatchSize()
		batchID := uuid.NewString()
		q.activeBatches[batchID] = batch
		q.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			q.processBatch(ctx, batchID, batch)
		}()
	}
}

func (q *Queue) processBatch(ctx context.Context, batchID string, batch []Item) {
	defer func() {
		q.mu.Lock()
		_, stillActive := q.activeBatches[batchID]
		delete(q.activeBatches, batchID)
		q.mu.Unlock()
		if stillActive {
			q.tokens <- struct{}{}
		}
		// If the batch isn't active anymore, OnRestart already reclaimed its
		// token and re-queued its chunks; nothing left to do here.
	}()

	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.Chunk.Text
	}

	vectors, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		q.handleBatchFailure(ctx, batchID, batch, err)
		return
	}
	if len(vectors) != len(batch) {
		q.handleBatchFailure(ctx, batchID, batch, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
		return
	}

	if !q.batchStillActive(batchID) {
		return // reclaimed by a restart while Embed was in flight
	}

	results := make([]Result, len(batch))
	for i, item := range batch {
		results[i] = Result{Item: item, Vector: vectors[i]}
	}
	if q.onBatch != nil {
		if err := q.onBatch(ctx, results); err != nil {
			q.handleBatchFailure(ctx, batchID, batch, err)
			return
		}
	}
	for _, item := range batch {
		q.markProcessed(item, nil)
	}
}

func (q *Queue) batchStillActive(batchID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.activeBatches[batchID]
	return ok
}

// handleBatchFailure re-queues the batch at the front (incrementing each
// chunk's retry counter) if under MaxRetries, else drops it and records a
// permanent failure for every chunk it contains. A non-retryable cause
// (e.g. a malformed or wrong-dimension embedder response) skips the
// requeue entirely and fails the batch immediately, per the "malformed
// responses are fatal for the batch" contract.
func (q *Queue) handleBatchFailure(ctx context.Context, batchID string, batch []Item, cause error) {
	if !q.batchStillActive(batchID) {
		return
	}

	maxChunkRetries := 0
	for _, item := range batch {
		if item.Retries > maxChunkRetries {
			maxChunkRetries = item.Retries
		}
	}

	if maxChunkRetries < q.cfg.MaxRetries && ierr.IsRetryable(cause) {
		retried := make([]Item, len(batch))
		for i, item := range batch {
			item.Retries++
			retried[i] = item
		}
		if q.cfg.RetryBackoff > 0 {
			select {
			case <-time.After(time.Duration(maxChunkRetries+1) * q.cfg.RetryBackoff):
			case <-ctx.Done():
			}
		}
		q.mu.Lock()
		q.items = append(retried, q.items...)
		q.notEmpty.Broadcast()
		q.mu.Unlock()
		return
	}

	for _, item := range batch {
		q.markProcessed(item, cause)
	}
}

func (q *Queue) markProcessed(item Item, err error) {
	key := q.trackerKey(item.Path, item.FileIndex)

	q.mu.Lock()
	tracker := q.trackers[key]
	var done bool
	var total, processed int
	if tracker != nil {
		tracker.processed++
		total = tracker.total
		processed = tracker.processed
		if processed >= total {
			done = true
			delete(q.trackers, key)
		}
	}
	q.mu.Unlock()

	if q.onProgress != nil {
		q.onProgress(item.Path, item.FileIndex, processed, total, err)
	}
	if done && tracker != nil {
		close(tracker.done)
	}
}

// OnRestart implements the embedder-restart recovery contract: every active
// batch's chunks are re-inserted at the front of the queue, the active-batch
// tracking is cleared, and their in-flight tokens are released. No chunk of
// an in-flight batch is lost.
func (q *Queue) OnRestart() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.activeBatches) == 0 {
		return
	}
	var recovered []Item
	for id, batch := range q.activeBatches {
		recovered = append(recovered, batch...)
		delete(q.activeBatches, id)
		q.tokens <- struct{}{}
	}
	q.items = append(recovered, q.items...)
	q.notEmpty.Broadcast()
}

// Depth returns the number of chunks currently queued (excluding in-flight
// batches).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ActiveBatchCount returns the number of batches currently in flight.
func (q *Queue) ActiveBatchCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.activeBatches)
}
