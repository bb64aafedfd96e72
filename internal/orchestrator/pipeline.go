package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foldermind/docindex/internal/config"
	"github.com/foldermind/docindex/internal/embedqueue"
	"github.com/foldermind/docindex/internal/filestatus"
	"github.com/foldermind/docindex/internal/ierr"
	"github.com/foldermind/docindex/internal/logging"
	"github.com/foldermind/docindex/internal/store"
	"github.com/foldermind/docindex/internal/watcher"
)

// startWatching launches one HybridWatcher per root; each watcher's blocking
// Start loop and its own watcher-forward goroutine run in the errgroup, and a
// watcher whose Start fails is reported as an error event. Each watcher only ever
// reports paths relative to the root it was started on, so the forwarder
// must rejoin them before touching any path-keyed component.
func (o *Orchestrator) startWatching(ctx context.Context, roots []string) error {
	for _, root := range roots {
		opts := watcher.DefaultOptions().WithDefaults()
		if o.cfg.Performance.WatchDebounce != "" {
			opts.DebounceWindow = o.cfg.WatchDebounceDuration()
		}
		opts.PollInterval = config.PollIntervalFor(o.cfg.Performance.CPUThrottle)
		opts.IgnorePatterns = o.cfg.Paths.Exclude
		w, err := watcher.NewHybridWatcher(opts)
		if err != nil {
			return fmt.Errorf("construct watcher for %s: %w", root, err)
		}
		rw := &rootWatcher{root: root, w: w}
		o.watchers = append(o.watchers, rw)
		o.group.Go(func() error {
			if err := ignoreContextCanceled(rw.w.Start(ctx, rw.root)); err != nil {
				logging.Component(o.logger, "watcher").Error("folder watcher stopped", slog.String("root", rw.root), slog.String("error", err.Error()))
				o.emit(Event{Type: EventError, Code: ierr.ErrCodeWatchFailed, Message: err.Error()})
			}
			return nil
		})
		o.group.Go(func() error { return o.runWatcherForward(ctx, rw) })
	}
	return nil
}

// runWatcherForward drains one watcher's batched events and routes each
// into the work queue (create/modify), a direct delete (bypassing parsing
// and embedding entirely), or a reconciliation re-scan (gitignore/config
// changes), per the per-file pipeline design.
func (o *Orchestrator) runWatcherForward(ctx context.Context, rw *rootWatcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-rw.w.Events():
			if !ok {
				return nil
			}
			o.handleWatchBatch(ctx, rw.root, batch)
		case err, ok := <-rw.w.Errors():
			if !ok {
				continue
			}
			logging.Component(o.logger, "watcher").Warn("folder watcher error", slog.String("root", rw.root), slog.String("error", err.Error()))
			o.emit(Event{Type: EventError, Code: ierr.ErrCodeWatchFailed, Message: err.Error()})
		}
	}
}

func (o *Orchestrator) handleWatchBatch(ctx context.Context, root string, batch []watcher.FileEvent) {
	var rescanNeeded bool

	for _, ev := range batch {
		switch ev.Operation {
		case watcher.OpGitignoreChange, watcher.OpConfigChange:
			rescanNeeded = true
			continue
		}

		absPath := filepath.Join(root, ev.Path)
		if ev.IsDir {
			continue
		}

		switch ev.Operation {
		case watcher.OpDelete:
			if err := o.writer.DeleteByPath(ctx, absPath); err != nil {
				o.logger.Error("failed to delete chunks for removed file", slog.String("path", absPath), slog.String("error", err.Error()))
			}
			if err := o.fileStatus.Delete(absPath); err != nil {
				o.logger.Error("failed to delete file status record", slog.String("path", absPath), slog.String("error", err.Error()))
			}
		case watcher.OpCreate, watcher.OpModify, watcher.OpRename:
			o.workQueue.Enqueue(absPath)
		}
	}

	if rescanNeeded {
		o.rescanRoot(root)
	}
}

// rescanRoot re-walks root and lets the reconciler decide what needs
// re-indexing, used after a .gitignore or project config edit changes
// which files are in scope.
func (o *Orchestrator) rescanRoot(root string) {
	candidates := o.walkRoots([]string{root})
	if _, err := o.reconciler.ScanForChanges(candidates, o.workQueue, time.Now()); err != nil {
		o.logger.Error("rescan after gitignore/config change failed", slog.String("root", root), slog.String("error", err.Error()))
	}
}

// runConsumer is the work queue's single drain loop: it pulls one path at a
// time and fans work out across at most maxConcurrentFiles concurrent
// per-file pipelines, bounded by a weighted semaphore per SPEC_FULL's
// concurrency design.
func (o *Orchestrator) runConsumer(ctx context.Context) error {
	for {
		path, ok := o.workQueue.Dequeue(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if err := o.sem.Acquire(ctx, 1); err != nil {
			return err
		}

		go func(path string) {
			defer o.sem.Release(1)
			defer o.workQueue.Complete(path)
			o.processPath(ctx, path)
		}(path)
	}
}

// processPath implements the per-file pipeline: stat, parse, chunk, enqueue
// for embedding, then record the terminal file status once every chunk has
// either embedded successfully or failed. A file is recorded indexed only
// if every one of its chunks embedded without error.
func (o *Orchestrator) processPath(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		o.recordFailure(path, "file no longer readable: "+err.Error())
		return
	}

	if o.cfg.Performance.MaxFileSizeBytes > 0 && info.Size() > o.cfg.Performance.MaxFileSizeBytes {
		o.recordFailure(path, "file too large")
		o.reconciler.RecordFailure(path)
		return
	}

	pages, err := o.parserReg.Parse(path)
	if err != nil {
		o.recordFailure(path, "parse failed: "+err.Error())
		o.reconciler.RecordFailure(path)
		o.logger.Warn("parse error, file recorded failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	chunks := o.chunker.Chunk(pages)
	if len(chunks) == 0 {
		o.recordFailure(path, "no text extracted")
		o.reconciler.RecordFailure(path)
		return
	}

	key := o.track(path, len(chunks))

	done, err := o.embedQueue.AddChunks(ctx, path, 0, chunks)
	if err != nil {
		o.untrack(key)
		o.recordFailure(path, "embedding enqueue failed: "+err.Error())
		o.reconciler.RecordFailure(path)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		o.untrack(key)
		return
	}

	fp := o.untrack(key)
	hash := filestatus.Fingerprint(info.Size(), info.ModTime())

	if fp != nil && fp.anyErr {
		o.recordFailureDetailed(path, fp.lastErr, o.parserReg.VersionFor(path), hash, info.ModTime())
		o.reconciler.RecordFailure(path)
		return
	}

	rec := filestatus.Record{
		Path:          path,
		Status:        filestatus.StatusIndexed,
		ParserVersion: o.parserReg.VersionFor(path),
		ChunkCount:    len(chunks),
		LastModified:  info.ModTime(),
		IndexedAt:     time.Now(),
		FileHash:      hash,
	}
	if err := o.fileStatus.Upsert(rec); err != nil {
		o.logger.Error("failed to persist file status", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	o.reconciler.RecordSuccess(path)
	o.bumpDone()
}

func (o *Orchestrator) recordFailure(path, reason string) {
	o.recordFailureDetailed(path, reason, 0, "", time.Now())
}

func (o *Orchestrator) recordFailureDetailed(path, reason string, parserVersion int, hash string, modified time.Time) {
	rec := filestatus.Record{
		Path:          path,
		Status:        filestatus.StatusFailed,
		ParserVersion: parserVersion,
		ErrorMessage:  reason,
		LastModified:  modified,
		LastRetry:     time.Now(),
		FileHash:      hash,
	}
	if err := o.fileStatus.Upsert(rec); err != nil {
		o.logger.Error("failed to persist failed file status", slog.String("path", path), slog.String("error", err.Error()))
	}
	o.bumpError()
}

func (o *Orchestrator) bumpDone() {
	o.mu.Lock()
	o.doneCount++
	o.mu.Unlock()
}

func (o *Orchestrator) bumpError() {
	o.mu.Lock()
	o.errorCount++
	o.mu.Unlock()
}

// track registers a fresh per-file progress tracker before chunks for path
// are handed to the embedding queue, keyed the same way embedqueue keys its
// own internal file tracker.
func (o *Orchestrator) track(path string, total int) string {
	key := trackerKey(path, 0)
	o.trackMu.Lock()
	o.trackers[key] = &fileProgress{total: total}
	o.trackMu.Unlock()
	return key
}

func (o *Orchestrator) untrack(key string) *fileProgress {
	o.trackMu.Lock()
	defer o.trackMu.Unlock()
	fp := o.trackers[key]
	delete(o.trackers, key)
	return fp
}

func trackerKey(path string, fileIndex int) string {
	return fmt.Sprintf("%s#%d", path, fileIndex)
}

// onEmbedProgress is registered once on the embedqueue.Queue; it records
// whether any chunk of the in-flight file failed so processPath can decide
// the file's terminal status once its done channel closes.
func (o *Orchestrator) onEmbedProgress(path string, fileIndex int, processed, total int, err error) {
	key := trackerKey(path, fileIndex)
	o.trackMu.Lock()
	fp := o.trackers[key]
	o.trackMu.Unlock()
	if fp == nil {
		return
	}
	fp.mu.Lock()
	if err != nil {
		fp.anyErr = true
		fp.lastErr = err.Error()
	}
	fp.mu.Unlock()
}

// onEmbedBatch is the embedqueue.Queue's BatchSink: it forwards embedded
// rows to the Vector Store Writer, translating each Result into a ChunkRow.
func (o *Orchestrator) onEmbedBatch(ctx context.Context, results []embedqueue.Result) error {
	rows := make([]store.ChunkRow, 0, len(results))
	mtimes := make(map[string]int64)
	for _, r := range results {
		mtime, ok := mtimes[r.Item.Path]
		if !ok {
			if info, err := os.Stat(r.Item.Path); err == nil {
				mtime = info.ModTime().UnixMilli()
			}
			mtimes[r.Item.Path] = mtime
		}
		rows = append(rows, store.ChunkRow{
			ID:     store.ChunkID(r.Item.Path, r.Item.Chunk.Page, r.Item.Chunk.Offset),
			Path:   r.Item.Path,
			MTime:  mtime,
			Page:   r.Item.Chunk.Page,
			Offset: r.Item.Chunk.Offset,
			Text:   r.Item.Chunk.Text,
			Vector: r.Vector,
			Type:   strings.ToLower(filepath.Ext(r.Item.Path)),
			Title:  filepath.Base(r.Item.Path),
		})
	}
	return o.writer.UpsertChunks(ctx, rows)
}
