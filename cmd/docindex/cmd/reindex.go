package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Wipe and rebuild the entire index from the watched roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdReindexAll}); err != nil {
				return err
			}
			fmt.Println("reindex started")
			return nil
		},
	}
}

func newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Gracefully stop the docindexd worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdShutdown}); err != nil {
				return err
			}
			fmt.Println("shutdown requested")
			return nil
		},
	}
}
