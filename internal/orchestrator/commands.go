package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foldermind/docindex/internal/async"
	"github.com/foldermind/docindex/internal/config"
	"github.com/foldermind/docindex/internal/gitignore"
	"github.com/foldermind/docindex/internal/ierr"
)

func wrapInternal(message string, cause error) *ierr.IndexError {
	return ierr.New(ierr.ErrCodeInternal, message, cause)
}

func cpuThrottleFrom(s string) config.CPUThrottle {
	switch config.CPUThrottle(s) {
	case config.ThrottleLow, config.ThrottleHigh:
		return config.CPUThrottle(s)
	default:
		return config.ThrottleMedium
	}
}

// maxConcurrentBatchesForThrottle mirrors the Config Store's own
// cpuThrottle resolution (config.maxConcurrentBatchesFor is unexported) so
// a live `updateSettings` call stays consistent with what a fresh Load
// would compute.
func maxConcurrentBatchesForThrottle(t config.CPUThrottle) int {
	switch t {
	case config.ThrottleHigh:
		return 2
	default:
		return 1
	}
}

// doWatchStart implements the `watchStart` command: merges roots/exclude
// into the persisted config, then starts a watcher for any root not
// already being watched.
func (o *Orchestrator) doWatchStart(ctx context.Context, cmd Command) error {
	existing := make(map[string]bool, len(o.watchers))
	for _, rw := range o.watchers {
		existing[rw.root] = true
	}

	var fresh []string
	for _, root := range cmd.Roots {
		if !existing[root] {
			fresh = append(fresh, root)
		}
	}

	o.cfg.Paths.Roots = mergeUnique(o.cfg.Paths.Roots, cmd.Roots)
	o.cfg.Paths.Exclude = mergeUnique(o.cfg.Paths.Exclude, cmd.Exclude)
	if err := o.cfg.Save(o.dataDir); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}

	if len(fresh) == 0 {
		return nil
	}

	candidates := o.walkRoots(fresh)
	if _, err := o.reconciler.ScanForChanges(candidates, o.workQueue, time.Now()); err != nil {
		return fmt.Errorf("initial scan of new roots: %w", err)
	}
	o.emit(Event{Type: EventFilesLoaded, Message: fmt.Sprintf("%d files discovered", len(candidates))})

	return o.startWatching(o.groupCtx, fresh)
}

// walkRoots collects every regular file under roots that isn't excluded by
// PathsConfig.Exclude or a .gitignore under the root, tracking the walk's
// progress in scanProgress so a `progress` poll mid-scan can report
// something more useful than silence on large trees. This mirrors the
// filtering HybridWatcher applies once it's running, so a file excluded at
// startup doesn't reappear the moment the live watcher takes over.
func (o *Orchestrator) walkRoots(roots []string) []string {
	o.scanProgress.SetStage(async.StageScanning, 0)

	var candidates []string
	for _, root := range roots {
		m := gitignore.New()
		m.AddPatterns(o.cfg.Paths.Exclude)
		_ = m.AddFromFile(filepath.Join(root, ".gitignore"), "")

		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if rel != "." && m.Match(filepath.ToSlash(rel), info.IsDir()) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			candidates = append(candidates, path)
			o.scanProgress.UpdateFiles(len(candidates))
			return nil
		})
	}
	return candidates
}

func mergeUnique(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range additions {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// doEnqueue implements the `enqueue` command: a caller-directed request to
// index specific paths outside the watched roots (e.g. a one-off file).
func (o *Orchestrator) doEnqueue(cmd Command) (Response, error) {
	for _, p := range cmd.Paths {
		o.workQueue.Enqueue(p)
	}
	return Response{}, nil
}

func (o *Orchestrator) doPause() (Response, error) {
	o.workQueue.Pause()
	o.setState(StatePaused)
	return Response{}, nil
}

func (o *Orchestrator) doResume() (Response, error) {
	o.workQueue.Resume()
	o.setState(StateReady)
	return Response{}, nil
}

// snapshotProgress answers the `progress` command.
func (o *Orchestrator) snapshotProgress() *ProgressSnapshot {
	o.mu.RLock()
	done, errs, initialized := o.doneCount, o.errorCount, o.state != StateInit
	o.mu.RUnlock()

	snap := &ProgressSnapshot{
		Queued:      o.workQueue.Len(),
		Processing:  o.workQueue.Processing(),
		Done:        done,
		Errors:      errs,
		Paused:      o.workQueue.Paused(),
		Initialized: initialized,
	}
	if o.scanProgress != nil {
		s := o.scanProgress.Snapshot()
		snap.Scan = &s
	}
	return snap
}

func (o *Orchestrator) doSearch(ctx context.Context, cmd Command) (Response, error) {
	results, err := o.searchSvc.Query(ctx, cmd.Query, cmd.K)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: results}, nil
}

// doStats implements the `stats` command: aggregate counts from the file
// status repository, grouped by which configured root each path falls
// under.
func (o *Orchestrator) doStats() (Response, error) {
	records, err := o.fileStatus.List()
	if err != nil {
		return Response{}, fmt.Errorf("list file status: %w", err)
	}

	perFolder := make(map[string]*FolderStats, len(o.cfg.Paths.Roots))
	for _, root := range o.cfg.Paths.Roots {
		perFolder[root] = &FolderStats{Folder: root}
	}

	indexedFiles := 0
	for _, rec := range records {
		folder := folderFor(rec.Path, o.cfg.Paths.Roots)
		fs, ok := perFolder[folder]
		if !ok {
			fs = &FolderStats{Folder: folder}
			perFolder[folder] = fs
		}
		fs.TotalFiles++
		if rec.Status == "indexed" {
			fs.IndexedFiles++
			indexedFiles++
		}
	}

	folderStats := make([]FolderStats, 0, len(perFolder))
	for _, fs := range perFolder {
		folderStats = append(folderStats, *fs)
	}

	return Response{Stats: &StatsSnapshot{
		TotalChunks:  o.writer.Count(),
		IndexedFiles: indexedFiles,
		FolderStats:  folderStats,
	}}, nil
}

func folderFor(path string, roots []string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !filepath.IsAbs(rel) && rel != ".." {
			if len(rel) < 2 || rel[:2] != ".." {
				return root
			}
		}
	}
	return filepath.Dir(path)
}

// doSearchFiles implements the `searchFiles` command: a substring match
// over tracked paths, returning each file's indexing status rather than
// chunk-level search results.
func (o *Orchestrator) doSearchFiles(cmd Command) (Response, error) {
	records, err := o.fileStatus.List()
	if err != nil {
		return Response{}, fmt.Errorf("list file status: %w", err)
	}

	var files []FileSummary
	for _, rec := range records {
		if cmd.QuerySubstring != "" && !containsFold(rec.Path, cmd.QuerySubstring) {
			continue
		}
		files = append(files, FileSummary{
			Path:     rec.Path,
			Status:   string(rec.Status),
			Chunks:   rec.ChunkCount,
			Error:    rec.ErrorMessage,
			Modified: rec.LastModified.Format(time.RFC3339),
		})
	}
	return Response{Files: files}, nil
}

func containsFold(haystack, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (o *Orchestrator) doGetSettings() (Response, error) {
	return Response{Settings: map[string]any{
		"roots":                o.cfg.Paths.Roots,
		"exclude":              o.cfg.Paths.Exclude,
		"cpuThrottle":          string(o.cfg.Performance.CPUThrottle),
		"maxConcurrentBatches": o.cfg.Performance.MaxConcurrentBatches,
		"maxFileSizeBytes":     o.cfg.Performance.MaxFileSizeBytes,
		"chunkSize":            o.cfg.Chunking.ChunkSize,
		"chunkOverlap":         o.cfg.Chunking.ChunkOverlap,
	}}, nil
}

// doUpdateSettings implements the `updateSettings` command: a partial
// patch applied to the in-memory config, then persisted. Only the
// sub-fields present in cmd.Settings are touched.
func (o *Orchestrator) doUpdateSettings(cmd Command) error {
	if t, ok := cmd.Settings["cpuThrottle"].(string); ok {
		o.cfg.Performance.CPUThrottle = cpuThrottleFrom(t)
		o.cfg.Performance.MaxConcurrentBatches = maxConcurrentBatchesForThrottle(o.cfg.Performance.CPUThrottle)
	}
	if v, ok := cmd.Settings["maxFileSizeBytes"].(float64); ok {
		o.cfg.Performance.MaxFileSizeBytes = int64(v)
	}
	if v, ok := cmd.Settings["chunkSize"].(float64); ok {
		o.cfg.Chunking.ChunkSize = int(v)
	}
	if v, ok := cmd.Settings["chunkOverlap"].(float64); ok {
		o.cfg.Chunking.ChunkOverlap = int(v)
	}
	return o.cfg.Save(o.dataDir)
}

// doReindexAll implements the `reindexAll` command (REINDEXING state):
// wipes every chunk and fingerprint, then re-walks every watched root so
// the reconciler re-queues everything from scratch.
func (o *Orchestrator) doReindexAll(ctx context.Context) error {
	o.setState(StateReindexing)

	if err := o.chunksRepo.Wipe(); err != nil {
		return o.fail(wrapInternal("failed to wipe chunks table for full reindex", err))
	}
	records, err := o.fileStatus.List()
	if err != nil {
		return o.fail(wrapInternal("failed to list file status for full reindex", err))
	}
	for _, rec := range records {
		_ = o.fileStatus.Delete(rec.Path)
	}

	candidates := o.walkRoots(o.cfg.Paths.Roots)
	if _, err := o.reconciler.ScanForChanges(candidates, o.workQueue, time.Now()); err != nil {
		return o.fail(wrapInternal("failed to re-queue candidates for full reindex", err))
	}

	o.setState(StateReady)
	return nil
}
