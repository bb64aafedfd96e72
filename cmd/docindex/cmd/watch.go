package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newWatchCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Start watching one or more root folders for indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{
				Type:    orchestrator.CmdWatchStart,
				Roots:   args,
				Exclude: exclude,
			})
			if err != nil {
				return err
			}
			_ = resp
			fmt.Printf("watching %d root(s)\n", len(args))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "additional glob patterns to exclude")
	return cmd
}
