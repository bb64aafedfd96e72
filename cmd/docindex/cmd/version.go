package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermind/docindex/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docindex client version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
