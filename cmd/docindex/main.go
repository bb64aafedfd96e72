// Command docindex is the CLI client for the docindexd worker.
package main

import (
	"fmt"
	"os"

	"github.com/foldermind/docindex/cmd/docindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "docindex:", err)
		os.Exit(1)
	}
}
