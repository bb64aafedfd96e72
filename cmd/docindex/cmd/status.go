package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the worker's current indexing progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdProgress})
			if err != nil {
				return err
			}
			p := resp.Progress
			if p == nil {
				fmt.Println("no progress snapshot available")
				return nil
			}
			state := "running"
			if p.Paused {
				state = colorize(ansiYellow, "paused")
			}
			fmt.Printf("state:      %s\n", state)
			fmt.Printf("queued:     %s\n", humanize.Comma(int64(p.Queued)))
			fmt.Printf("processing: %s\n", humanize.Comma(int64(p.Processing)))
			fmt.Printf("done:       %s\n", humanize.Comma(int64(p.Done)))
			errs := humanize.Comma(int64(p.Errors))
			if p.Errors > 0 {
				errs = colorize(ansiRed, errs)
			}
			fmt.Printf("errors:     %s\n", errs)
			if s := p.Scan; s != nil && s.Status == "indexing" {
				fmt.Printf("scanning:   %s (%s/%s files, %.0f%%, %ds elapsed)\n",
					s.Stage, humanize.Comma(int64(s.FilesProcessed)), humanize.Comma(int64(s.FilesTotal)),
					s.ProgressPct, s.ElapsedSeconds)
			}
			return nil
		},
	}
}
