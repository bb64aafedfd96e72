// Package cmd provides the docindex CLI: a thin client that drives a
// running docindexd worker over its Unix-domain socket.
package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/ipc"
	"github.com/foldermind/docindex/pkg/version"
)

var (
	dataDir    string
	socketPath string
	timeout    time.Duration
)

// NewRootCmd creates the root command for the docindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docindex",
		Short:   "Client for the docindex local semantic-search worker",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.docindex)")
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "", "docindexd unix socket (default: <data-dir>/docindexd.sock)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSearchFilesCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newShutdownCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".docindex")
}

func newIPCClient() *ipc.Client {
	sock := socketPath
	if sock == "" {
		sock = filepath.Join(resolveDataDir(), "docindexd.sock")
	}
	return ipc.NewClient(sock, timeout)
}
