package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/foldermind/docindex/internal/async"
	"github.com/foldermind/docindex/internal/chunk"
	"github.com/foldermind/docindex/internal/config"
	"github.com/foldermind/docindex/internal/embed"
	"github.com/foldermind/docindex/internal/embedqueue"
	"github.com/foldermind/docindex/internal/filestatus"
	"github.com/foldermind/docindex/internal/ierr"
	"github.com/foldermind/docindex/internal/lifecycle"
	"github.com/foldermind/docindex/internal/logging"
	"github.com/foldermind/docindex/internal/parser"
	"github.com/foldermind/docindex/internal/queue"
	"github.com/foldermind/docindex/internal/search"
	"github.com/foldermind/docindex/internal/store"
	"github.com/foldermind/docindex/internal/watcher"
)

// maxConcurrentFiles bounds how many paths the work-queue consumer drives
// through the per-file pipeline at once, independent of the embedding
// queue's own batch concurrency cap.
const maxConcurrentFiles = 8

// instanceLockName is the lock file guarding one Orchestrator per data
// directory, adapted from the teacher's indexing.lock marker file into a
// real advisory lock so a second worker launched against the same data
// directory fails fast instead of corrupting the SQLite stores.
const instanceLockName = "docindexd.lock"

type commandRequest struct {
	cmd  Command
	resp chan commandResult
}

type commandResult struct {
	response Response
	err      error
}

type rootWatcher struct {
	root string
	w    *watcher.HybridWatcher
}

type fileProgress struct {
	mu      sync.Mutex
	total   int
	anyErr  bool
	lastErr string
}

// Orchestrator owns every other component, drives the per-file pipeline,
// and exposes the external command/event interface (spec §4.11).
type Orchestrator struct {
	logger      *slog.Logger
	sidecarSpec lifecycle.Spec

	mu      sync.RWMutex
	state   State
	lastErr *ierr.IndexError

	dataDir string
	cfg     *config.Config

	instanceLock *flock.Flock
	fileStatus   *filestatus.Repository
	chunksRepo   *store.ChunksRepo
	vectorStore  store.VectorStore
	writer       *store.Writer
	parserReg    *parser.Registry
	chunker      *chunk.Chunker
	workQueue    *queue.Queue
	reconciler   *queue.Reconciler
	embedQueue   *embedqueue.Queue
	rawEmbed     *embed.Client
	searchSvc    *search.Service
	supervisor   *lifecycle.Supervisor

	watchers []*rootWatcher

	commands chan commandRequest
	events   chan Event

	doneCount  int
	errorCount int

	// scanProgress tracks the discovery-walk phase of watchStart/reindexAll
	// (the one part of the pipeline that really is a single sequential
	// pass), surfaced through the `progress` command alongside the queue
	// counters above.
	scanProgress *async.IndexProgress

	trackMu  sync.Mutex
	trackers map[string]*fileProgress

	group       *errgroup.Group
	groupCtx    context.Context
	groupCancel context.CancelFunc
	sem         *semaphore.Weighted
}

// New constructs an Orchestrator. sidecarSpec describes how to launch the
// embedding sidecar once INIT reaches SIDECAR_STARTING.
func New(logger *slog.Logger, sidecarSpec lifecycle.Spec) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:      logger,
		sidecarSpec: sidecarSpec,
		state:       StateInit,
		commands:    make(chan commandRequest),
		events:      make(chan Event, 64),
		trackers:     make(map[string]*fileProgress),
		sem:          semaphore.NewWeighted(maxConcurrentFiles),
		scanProgress: async.NewIndexProgress(),
	}
}

// Events returns the channel of asynchronous notifications (spec §6).
// Callers must drain it; when its buffer is full, new events are dropped
// with a warning.
func (o *Orchestrator) Events() <-chan Event { return o.events }

func (o *Orchestrator) emit(e Event) {
	select {
	case o.events <- e:
	default:
		o.logger.Warn("dropping event, subscriber too slow", slog.String("type", string(e.Type)))
	}
}

// Dispatch submits cmd to the single-task runner and blocks for its
// response. Safe to call from any goroutine; Run must be running
// concurrently to service it.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	req := commandRequest{cmd: cmd, resp: make(chan commandResult, 1)}
	select {
	case o.commands <- req:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case res := <-req.resp:
		return res.response, res.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Run drives the command loop until ctx is canceled or a shutdown command
// completes. Commands are handled one at a time on this goroutine; the
// pipeline goroutines started by init update the done/error counters and
// per-file trackers under their own mutexes.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return ctx.Err()
		case req := <-o.commands:
			resp, err := o.handleCommand(ctx, req.cmd)
			req.resp <- commandResult{response: resp, err: err}
			if req.cmd.Type == CmdShutdown {
				return nil
			}
		}
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Type {
	case CmdInit:
		return Response{}, o.doInit(ctx, cmd)
	case CmdWatchStart:
		return Response{}, o.doWatchStart(ctx, cmd)
	case CmdEnqueue:
		return o.doEnqueue(cmd)
	case CmdPause:
		return o.doPause()
	case CmdResume:
		return o.doResume()
	case CmdProgress:
		return Response{Progress: o.snapshotProgress()}, nil
	case CmdSearch:
		return o.doSearch(ctx, cmd)
	case CmdStats:
		return o.doStats()
	case CmdSearchFiles:
		return o.doSearchFiles(cmd)
	case CmdGetWatchedFolders:
		return Response{Folders: append([]string(nil), o.cfg.Paths.Roots...)}, nil
	case CmdGetSettings:
		return o.doGetSettings()
	case CmdUpdateSettings:
		return Response{}, o.doUpdateSettings(cmd)
	case CmdReindexAll:
		return Response{}, o.doReindexAll(ctx)
	case CmdShutdown:
		return Response{}, o.doShutdown(ctx)
	case CmdRetry:
		return Response{}, o.doRetry(ctx)
	default:
		return Response{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

// doInit runs INIT through READY (spec's first five state-table rows),
// blocking the calling Dispatch until the pipeline is serving or the chain
// fails into ERROR.
func (o *Orchestrator) doInit(ctx context.Context, cmd Command) error {
	o.setState(StateInit)

	dataDir := cmd.DataDir
	if dataDir == "" {
		dataDir = config.New().Store.DataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return o.fail(ierr.New(ierr.ErrCodeConfigPermission, "failed to create data directory", err))
	}
	o.dataDir = dataDir

	lock := flock.New(filepath.Join(dataDir, instanceLockName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		return o.fail(ierr.New(ierr.ErrCodeConfigPermission, "another docindexd instance already owns this data directory", err))
	}
	o.instanceLock = lock

	projectDir := cmd.UserDataPath
	if projectDir == "" {
		projectDir = dataDir
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeConfigInvalid, "failed to load configuration", err))
	}
	if cfg.Store.DataDir == "" || cmd.DataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	o.cfg = cfg

	fileStatusRepo, err := filestatus.Open(filepath.Join(dataDir, "file_status.db"))
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeConfigInvalid, "failed to open file status repository", err))
	}
	o.fileStatus = fileStatusRepo

	chunksRepo, err := store.OpenChunksRepo(filepath.Join(dataDir, "chunks.db"))
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeConfigInvalid, "failed to open chunks repository", err))
	}
	o.chunksRepo = chunksRepo

	o.parserReg = parser.NewRegistry()
	chunker, err := chunk.New(chunk.Config{ChunkSize: cfg.Chunking.ChunkSize, ChunkOverlap: cfg.Chunking.ChunkOverlap})
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeConfigInvalid, "invalid chunking configuration", err))
	}
	o.chunker = chunker

	o.workQueue = queue.New(0)
	o.reconciler = queue.NewReconciler(fileStatusRepo, nil, o.parserReg.VersionFor)

	supervisedCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(supervisedCtx)
	o.group = group
	o.groupCtx = groupCtx
	o.groupCancel = cancel

	return o.startSidecar(groupCtx)
}

// startSidecar implements SIDECAR_STARTING and SIDECAR_HEALTHCHECK.
func (o *Orchestrator) startSidecar(ctx context.Context) error {
	o.setState(StateSidecarStarting)

	supervisor := lifecycle.NewSupervisor(o.sidecarSpec)
	if err := supervisor.Start(ctx); err != nil {
		return o.fail(ierr.StartupTimeout("embedding sidecar failed to start", err))
	}
	o.supervisor = supervisor

	rawEmbed := embed.NewClient(embed.Config{
		Host:       o.cfg.Embeddings.SidecarHost,
		Model:      o.cfg.Embeddings.Model,
		Dimensions: o.cfg.Embeddings.Dimensions,
	})
	o.rawEmbed = rawEmbed

	o.setState(StateSidecarHealthcheck)
	if err := rawEmbed.Health(ctx); err != nil {
		return o.fail(ierr.SidecarDown("embedding sidecar did not report healthy", err))
	}
	if err := rawEmbed.Info(ctx); err != nil {
		return o.fail(ierr.SidecarDown("embedding sidecar /info request failed", err))
	}

	return o.reconcileSchema(ctx)
}

// reconcileSchema resolves a dimension mismatch between the sidecar's
// reported embedding size and whatever the on-disk vector store was built
// with, wiping and rebuilding when they disagree (spec's only supported
// migration path), before entering LOADING_STATE.
func (o *Orchestrator) reconcileSchema(ctx context.Context) error {
	vectorPath := filepath.Join(o.dataDir, "vectors.hnsw")
	reportedDims := o.rawEmbed.Dimensions()

	existingDims := 0
	if _, err := os.Stat(vectorPath); err == nil {
		if d, err := store.ReadHNSWStoreDimensions(vectorPath); err == nil {
			existingDims = d
		}
	}

	wipeVectors := existingDims != 0 && existingDims != reportedDims
	if wipeVectors {
		o.setState(StateWipingChunks)
		if err := o.chunksRepo.Wipe(); err != nil {
			return o.fail(ierr.StoreSchemaMismatch("failed to wipe chunks table on dimension mismatch", err))
		}
		_ = os.Remove(vectorPath)
	}

	vectorStore, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(reportedDims))
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeDimensionMismatch, "failed to construct vector store", err))
	}
	if !wipeVectors && existingDims != 0 {
		if err := vectorStore.Load(vectorPath); err != nil {
			return o.fail(ierr.StoreSchemaMismatch("failed to load vector store", err))
		}
	}
	o.vectorStore = vectorStore

	wiped2, err := store.EnsureSchema(o.chunksRepo)
	if err != nil {
		return o.fail(ierr.StoreSchemaMismatch("failed to ensure chunks schema", err))
	}
	if wiped2 && !wipeVectors {
		_ = os.Remove(vectorPath)
	}

	return o.loadState(ctx)
}

// loadState implements LOADING_STATE: the startup reconciliation sweep
// (SPEC_FULL §5.3) plus standing up the write-serializing and embedding
// layers, then transitions to READY.
func (o *Orchestrator) loadState(ctx context.Context) error {
	o.setState(StateLoadingState)

	storeLog := logging.Component(o.logger, "store")

	writer := store.NewWriter(o.chunksRepo, o.vectorStore, o.cfg.Store.CompactionOrphanRatio, o.cfg.Store.CompactionCountTrigger)
	o.writer = writer
	o.group.Go(func() error { return ignoreContextCanceled(writer.Run(o.groupCtx)) })

	pruned, err := o.fileStatus.PruneMissing(func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeInternal, "startup reconciliation sweep failed", err))
	}
	for _, path := range pruned {
		if err := writer.DeleteByPath(ctx, path); err != nil {
			storeLog.Error("failed to delete chunk rows for pruned file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	if len(pruned) > 0 {
		storeLog.Info("pruned file status records and chunk rows for paths no longer on disk", slog.Int("count", len(pruned)))
	}

	embedCfg := embedqueue.DefaultConfig()
	embedCfg.EmbeddingBatchSize = o.cfg.Embeddings.BatchSize
	embedCfg.MaxTokensPerBatch = o.cfg.Embeddings.MaxTokensPerBatch
	embedCfg.MaxConcurrentBatches = o.cfg.Performance.MaxConcurrentBatches

	embedQueue := embedqueue.New(embedCfg, o.rawEmbed, o.onEmbedBatch, o.onEmbedProgress)
	o.embedQueue = embedQueue
	o.group.Go(func() error { return ignoreContextCanceled(embedQueue.Run(o.groupCtx)) })

	o.supervisor.OnRestart(func() {
		o.rawEmbed.NotifyRestart()
		o.embedQueue.OnRestart()
	})

	cachedEmbed := embed.NewCachedClient(o.rawEmbed, 0)
	searchSvc, err := search.New(cachedEmbed, o.writer)
	if err != nil {
		return o.fail(ierr.New(ierr.ErrCodeInternal, "failed to construct query service", err))
	}
	o.searchSvc = searchSvc

	o.group.Go(func() error { return ignoreContextCanceled(o.runConsumer(o.groupCtx)) })

	o.setState(StateReady)
	o.emit(Event{Type: EventReady})
	if len(o.cfg.Paths.Roots) > 0 {
		if err := o.startWatching(o.groupCtx, o.cfg.Paths.Roots); err != nil {
			logging.Component(o.logger, "watcher").Error("failed to start folder watcher", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (o *Orchestrator) fail(err *ierr.IndexError) error {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	o.setState(StateError)
	if o.scanProgress != nil {
		o.scanProgress.SetError(err.Message)
	}
	o.emit(Event{Type: EventError, Code: err.Code, Message: err.Message})
	return err
}

func ignoreContextCanceled(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// teardown is invoked when Run's parent context is canceled directly
// (process signal) rather than through a graceful `shutdown` command.
func (o *Orchestrator) teardown() {
	for _, rw := range o.watchers {
		_ = rw.w.Stop()
	}
	if o.groupCancel != nil {
		o.groupCancel()
	}
	if o.supervisor != nil {
		_ = o.supervisor.Stop()
	}
	if o.chunksRepo != nil {
		_ = o.chunksRepo.Close()
	}
	if o.fileStatus != nil {
		_ = o.fileStatus.Close()
	}
	if o.vectorStore != nil {
		_ = o.vectorStore.Save(filepath.Join(o.dataDir, "vectors.hnsw"))
		_ = o.vectorStore.Close()
	}
	if o.instanceLock != nil {
		_ = o.instanceLock.Unlock()
	}
}

func (o *Orchestrator) doShutdown(ctx context.Context) error {
	o.setState(StateShuttingDown)

	for _, rw := range o.watchers {
		_ = rw.w.Stop()
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
drain:
	for o.workQueue != nil && (o.workQueue.Len() > 0 || o.workQueue.Processing() > 0) {
		select {
		case <-drainCtx.Done():
			break drain
		case <-time.After(50 * time.Millisecond):
		}
	}

	if o.vectorStore != nil {
		_ = o.vectorStore.Save(filepath.Join(o.dataDir, "vectors.hnsw"))
	}
	if o.groupCancel != nil {
		o.groupCancel()
	}
	if o.supervisor != nil {
		_ = o.supervisor.Stop()
	}
	if o.chunksRepo != nil {
		_ = o.chunksRepo.Close()
	}
	if o.fileStatus != nil {
		_ = o.fileStatus.Close()
	}
	if o.vectorStore != nil {
		_ = o.vectorStore.Close()
	}
	if o.instanceLock != nil {
		_ = o.instanceLock.Unlock()
	}
	return nil
}

func (o *Orchestrator) doRetry(ctx context.Context) error {
	if o.State() != StateError {
		return fmt.Errorf("retry is only valid from the ERROR state")
	}
	return o.startSidecar(o.groupCtx)
}
