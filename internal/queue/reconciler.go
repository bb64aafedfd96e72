package queue

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foldermind/docindex/internal/filestatus"
)

// Backoff tiers for a failed or outdated path: 1 minute, 10 minutes, then
// capped at 1 hour for every subsequent consecutive failure.
var backoffTiers = []time.Duration{
	1 * time.Minute,
	10 * time.Minute,
	1 * time.Hour,
}

// Reconciler decides which watcher events translate into Work Queue
// enqueues, per scanForChanges: new files, files whose on-disk fingerprint
// has drifted from their recorded one, and failed/outdated files whose
// retry back-off has elapsed.
type Reconciler struct {
	repo      *filestatus.Repository
	fileTypes map[string]struct{} // enabled extensions, lowercase, "" allowed for extensionless
	versionOf func(path string) int

	mu       sync.Mutex
	failures map[string]int // consecutive failure count per path, since process start
}

// NewReconciler constructs a Reconciler. versionOf reports the currently
// declared parser version for a path's extension (the Parser Registry's
// VersionFor).
func NewReconciler(repo *filestatus.Repository, enabledExtensions []string, versionOf func(path string) int) *Reconciler {
	types := make(map[string]struct{}, len(enabledExtensions))
	for _, ext := range enabledExtensions {
		types[strings.ToLower(ext)] = struct{}{}
	}
	return &Reconciler{
		repo:      repo,
		fileTypes: types,
		versionOf: versionOf,
		failures:  make(map[string]int),
	}
}

// RecordFailure increments path's consecutive failure count, widening its
// next retry back-off.
func (r *Reconciler) RecordFailure(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path]++
}

// RecordSuccess clears path's consecutive failure count.
func (r *Reconciler) RecordSuccess(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, path)
}

func (r *Reconciler) backoffFor(path string) time.Duration {
	r.mu.Lock()
	n := r.failures[path]
	r.mu.Unlock()

	if n <= 0 {
		return 0
	}
	idx := n - 1
	if idx >= len(backoffTiers) {
		idx = len(backoffTiers) - 1
	}
	return backoffTiers[idx]
}

// fileTypeEnabled reports whether ext(path) is in the enabled set. An empty
// fileTypes set means everything is allowed.
func (r *Reconciler) fileTypeEnabled(path string) bool {
	if len(r.fileTypes) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := r.fileTypes[ext]
	return ok
}

// ShouldReindex implements the spec's shouldReindex(path, rec) predicate.
func (r *Reconciler) ShouldReindex(path string, rec filestatus.Record, now time.Time) bool {
	if rec.Status == filestatus.StatusFailed || rec.Status == filestatus.StatusOutdated {
		elapsed := now.Sub(rec.LastRetry)
		if elapsed >= r.backoffFor(path) {
			return true
		}
	}
	if rec.ParserVersion < r.versionOf(path) {
		return true
	}
	return false
}

// ScanForChanges evaluates candidates against the file status repository and
// enqueues the ones that need (re)indexing, following the spec's five-step
// decision order. Returns the paths actually enqueued.
func (r *Reconciler) ScanForChanges(candidates []string, q *Queue, now time.Time) ([]string, error) {
	var enqueued []string

	for _, path := range candidates {
		if q.IsQueued(path) || q.IsProcessing(path) {
			continue
		}
		if !r.fileTypeEnabled(path) {
			continue
		}

		rec, ok, err := r.repo.Get(path)
		if err != nil {
			return enqueued, err
		}
		if !ok {
			if q.Enqueue(path) {
				enqueued = append(enqueued, path)
			}
			continue
		}

		if r.ShouldReindex(path, rec, now) {
			if q.Enqueue(path) {
				enqueued = append(enqueued, path)
			}
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue // file vanished between scan and stat; the watcher's unlink handler deals with it
		}
		if info.ModTime().After(rec.IndexedAt) {
			fp := filestatus.Fingerprint(info.Size(), info.ModTime())
			if fp != rec.FileHash {
				if q.Enqueue(path) {
					enqueued = append(enqueued, path)
				}
			}
		}
	}

	return enqueued, nil
}
