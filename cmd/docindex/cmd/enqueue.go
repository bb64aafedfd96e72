package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [paths...]",
		Short: "Queue specific files for indexing outside the watched roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{
				Type:  orchestrator.CmdEnqueue,
				Paths: args,
			}); err != nil {
				return err
			}
			fmt.Printf("enqueued %d path(s)\n", len(args))
			return nil
		},
	}
}
