// Command docindexd is the indexing worker: it owns the Orchestrator state
// machine, the embedding sidecar child process, and every on-disk store,
// and exposes the command surface over a Unix domain socket so cmd/docindex
// (or any other host shell) can drive it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/foldermind/docindex/internal/ipc"
	"github.com/foldermind/docindex/internal/lifecycle"
	"github.com/foldermind/docindex/internal/logging"
	"github.com/foldermind/docindex/internal/orchestrator"
	"github.com/foldermind/docindex/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dataDir        string
		socketPath     string
		embedderCmd    string
		embedderArgs   string
		embedderPort   int
		embedderModel  string
		embedderHealth string
		debug          bool
		showVersion    bool
	)

	fs := flag.NewFlagSet("docindexd", flag.ContinueOnError)
	fs.StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.docindex)")
	fs.StringVar(&socketPath, "socket", "", "unix socket path (default: <data-dir>/docindexd.sock)")
	fs.StringVar(&embedderCmd, "embedder-command", "", "executable that starts the embedding sidecar")
	fs.StringVar(&embedderArgs, "embedder-args", "", "comma-separated extra args for the embedder command")
	fs.IntVar(&embedderPort, "embedder-port", 8943, "port passed to the embedder via --port")
	fs.StringVar(&embedderModel, "embedder-model", "", "model id passed to the embedder via --model")
	fs.StringVar(&embedderHealth, "embedder-health-url", "", "embedder health-check URL (default derived from --embedder-port)")
	fs.BoolVar(&debug, "debug", false, "enable verbose file logging")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	if showVersion {
		fmt.Println(version.String())
		return 0
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dataDir = filepath.Join(home, ".docindex")
	}
	if socketPath == "" {
		socketPath = filepath.Join(dataDir, "docindexd.sock")
	}
	if embedderHealth == "" {
		embedderHealth = fmt.Sprintf("http://127.0.0.1:%d/health", embedderPort)
	}

	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	}
	logCfg.FilePath = filepath.Join(dataDir, "logs", "docindexd.log")
	logger, cleanupLog, err := logging.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docindexd: failed to set up logging: %v\n", err)
		return 1
	}
	defer cleanupLog()

	logger.Info("starting docindexd", slog.String("version", version.Version), slog.String("dataDir", dataDir))

	var sidecarArgs []string
	if embedderArgs != "" {
		sidecarArgs = strings.Split(embedderArgs, ",")
	}
	sidecarArgs = append(sidecarArgs, "--port", fmt.Sprintf("%d", embedderPort))
	if embedderModel != "" {
		sidecarArgs = append(sidecarArgs, "--model", embedderModel)
	}

	spec := lifecycle.Spec{
		Command:   embedderCmd,
		Args:      sidecarArgs,
		HealthURL: embedderHealth,
	}

	orch := orchestrator.New(logger, spec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDone := make(chan error, 1)
	go func() { runDone <- orch.Run(ctx) }()

	initCtx, initCancel := context.WithTimeout(context.Background(), 60*time.Second)
	_, err = orch.Dispatch(initCtx, orchestrator.Command{Type: orchestrator.CmdInit, DataDir: dataDir})
	initCancel()
	if err != nil {
		logger.Error("init failed", slog.String("error", err.Error()))
		return 1
	}

	server := ipc.NewServer(socketPath, logger)
	go forwardEvents(ctx, orch, logger)

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe(ctx, func(ctx context.Context, env ipc.Envelope) ipc.Reply {
			resp, err := orch.Dispatch(ctx, env.Command)
			if err != nil {
				return ipc.NewErrorReply(env.ID, ipc.ErrCodeDispatchFailed, err.Error())
			}
			return ipc.NewReply(env.ID, resp)
		})
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		if err != nil {
			logger.Error("ipc server exited", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, _ = orch.Dispatch(shutdownCtx, orchestrator.Command{Type: orchestrator.CmdShutdown})
	shutdownCancel()

	_ = server.Close()
	<-runDone

	logger.Info("docindexd stopped")
	return 0
}

func forwardEvents(ctx context.Context, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-orch.Events():
			if !ok {
				return
			}
			logger.Info("event", slog.String("type", string(ev.Type)), slog.String("stage", ev.Stage), slog.String("message", ev.Message))
		}
	}
}
