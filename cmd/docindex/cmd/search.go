package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newSearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic search against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{
				Type:  orchestrator.CmdSearch,
				Query: strings.Join(args, " "),
				K:     k,
			})
			if err != nil {
				return err
			}
			if len(resp.Results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range resp.Results {
				fmt.Printf("%2d. %.4f  %s:%d (+%d)\n    %s\n", i+1, r.Score, r.Path, r.Page, r.Offset, truncate(r.Text, 160))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of results to return")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
