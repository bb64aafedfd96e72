package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or update the worker's live settings",
	}
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current settings as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newIPCClient()
			resp, err := client.Call(cmd.Context(), orchestrator.Command{Type: orchestrator.CmdGetSettings})
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(resp.Settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var cpuThrottle string
	var maxFileSizeBytes int64
	var chunkSize, chunkOverlap int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Patch one or more settings (only flags explicitly given are applied)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := map[string]any{}
			if cmd.Flags().Changed("cpu-throttle") {
				settings["cpuThrottle"] = cpuThrottle
			}
			if cmd.Flags().Changed("max-file-size-bytes") {
				settings["maxFileSizeBytes"] = float64(maxFileSizeBytes)
			}
			if cmd.Flags().Changed("chunk-size") {
				settings["chunkSize"] = float64(chunkSize)
			}
			if cmd.Flags().Changed("chunk-overlap") {
				settings["chunkOverlap"] = float64(chunkOverlap)
			}
			if len(settings) == 0 {
				return fmt.Errorf("no settings given, see --help")
			}

			client := newIPCClient()
			if _, err := client.Call(cmd.Context(), orchestrator.Command{
				Type:     orchestrator.CmdUpdateSettings,
				Settings: settings,
			}); err != nil {
				return err
			}
			fmt.Println("settings updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&cpuThrottle, "cpu-throttle", "", "low, medium, or high")
	cmd.Flags().Int64Var(&maxFileSizeBytes, "max-file-size-bytes", 0, "reject files larger than this")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "chunk window size")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "chunk overlap size")

	return cmd
}
