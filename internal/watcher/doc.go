// Package watcher provides real-time file system watching with automatic
// debouncing and gitignore-aware filtering.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: polling for environments where fsnotify fails (network mounts, Docker volumes)
//
// Events are debounced to coalesce rapid changes from IDEs and git operations,
// and filtered against .gitignore patterns (plus the indexer's own configured
// exclude list) to skip irrelevant files.
//
// The Orchestrator runs one HybridWatcher per watched root rather than a
// single watcher over a project tree: each instance only ever reports paths
// relative to the root it was started on, so a caller watching several
// independent directories fans out N watchers and rejoins their batches
// itself (see internal/orchestrator/pipeline.go's runWatcherForward).
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, "/path/to/watched/root") }() // Start blocks
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate, watcher.OpModify:
//	            // enqueue for (re)indexing
//	        case watcher.OpDelete:
//	            // drop chunks and file status directly, no parsing needed
//	        }
//	    }
//	}
package watcher
