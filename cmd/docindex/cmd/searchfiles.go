package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newSearchFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files [substring]",
		Short: "List indexed files, optionally filtered by a path substring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var substr string
			if len(args) == 1 {
				substr = args[0]
			}
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{
				Type:           orchestrator.CmdSearchFiles,
				QuerySubstring: substr,
			})
			if err != nil {
				return err
			}
			for _, f := range resp.Files {
				if f.Error != "" {
					fmt.Printf("%-8s %s (%d chunks) — %s\n", f.Status, f.Path, f.Chunks, f.Error)
					continue
				}
				fmt.Printf("%-8s %s (%d chunks)\n", f.Status, f.Path, f.Chunks)
			}
			return nil
		},
	}
}
