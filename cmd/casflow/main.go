// casflow runs aggregate descriptors over text files and inspects the
// CAS journal.
//
// Usage:
//
//	casflow run --config <aggregate.yaml> [--journal <path.db>] [--parallel N] <file>...
//	casflow journal --db <path.db> <run-id>
//
// LOG_LEVEL (DEBUG, INFO, WARN, ERROR) and LOG_FORMAT (json, text)
// configure logging to stderr.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/casflow/pkg/casflow/observability"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "casflow",
		Short: "Run CAS analysis aggregates",
		Long:  "casflow drives documents through an aggregate of annotators and CAS\nmultipliers and records the outcome of every CAS in a journal.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      version,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newJournalCmd())
	return root
}

func main() {
	observability.SetupLogger()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
