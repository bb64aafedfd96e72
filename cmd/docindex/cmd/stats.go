package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-folder indexing statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdStats})
			if err != nil {
				return err
			}
			s := resp.Stats
			if s == nil {
				fmt.Println("no stats available")
				return nil
			}
			fmt.Printf("total chunks:  %s\n", humanize.Comma(int64(s.TotalChunks)))
			fmt.Printf("indexed files: %s\n\n", humanize.Comma(int64(s.IndexedFiles)))
			for _, fs := range s.FolderStats {
				fmt.Printf("%-50s %s/%s files\n", fs.Folder, humanize.Comma(int64(fs.IndexedFiles)), humanize.Comma(int64(fs.TotalFiles)))
			}
			return nil
		},
	}
}
