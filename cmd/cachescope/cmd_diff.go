// Package main implements the cachescope CLI.
// This file contains the diff command over saved runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// diffCmd compares the two most recent saved runs
var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the findings of the last two saved runs",
	Long: `Loads the two most recent runs from the scan history and reports
which findings are new and which were resolved. Runs are recorded with the
--save flag on analyze or check-invalidation.`,
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open scan history: %w", err)
	}
	defer st.Close()

	d, err := st.DiffLastRuns()
	if err != nil {
		return err
	}

	fmt.Printf("Comparing %s (%s) against %s (%s)\n",
		shortID(d.Base.ID), d.Base.StartedAt.Format("2006-01-02 15:04:05"),
		shortID(d.Head.ID), d.Head.StartedAt.Format("2006-01-02 15:04:05"))

	if len(d.New) == 0 && len(d.Resolved) == 0 {
		fmt.Println("No changes between the last two runs.")
		return nil
	}

	if len(d.New) > 0 {
		fmt.Printf("\nNew findings (%d):\n", len(d.New))
		for _, f := range d.New {
			fmt.Fprintf(os.Stdout, "  + %s\n", f.String())
		}
	}
	if len(d.Resolved) > 0 {
		fmt.Printf("\nResolved findings (%d):\n", len(d.Resolved))
		for _, f := range d.Resolved {
			fmt.Fprintf(os.Stdout, "  - %s\n", f.String())
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
