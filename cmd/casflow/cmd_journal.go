package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/casflow/pkg/casflow/journal"
)

func newJournalCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "journal <run-id>",
		Short: "List the CAS outcomes recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(args[0])
			if err != nil {
				return fmt.Errorf("list run %s: %w", args[0], err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("no journal entries for run %s", args[0])
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tCAS\tPARENT\tOUTCOME\tLAST\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					e.Sequence, e.CASID, dash(e.ParentCASID), e.Outcome, dash(e.LastComponent), e.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			summary := journal.Summary(entries)
			outcomes := make([]string, 0, len(summary))
			for o := range summary {
				outcomes = append(outcomes, string(o))
			}
			sort.Strings(outcomes)
			for _, o := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", o, summary[journal.Outcome(o)])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "casflow.db", "SQLite journal path")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
