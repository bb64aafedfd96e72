package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdPause}); err != nil {
				return err
			}
			fmt.Println("paused")
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdResume}); err != nil {
				return err
			}
			fmt.Println("resumed")
			return nil
		},
	}
}
