// Package main implements the cachescope CLI.
// This file contains the analyze and check-invalidation commands.
package main

import (
	"os"
	"time"

	"cachescope/internal/logging"
	"cachescope/internal/report"

	"github.com/spf13/cobra"
)

var (
	analyzeApp  string
	analyzeSave bool
)

// analyzeCmd runs the full rule set against the project
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze cache usage across the project",
	Long: `Scans every installed first-party app and evaluates all cache rules:

  uncached-view          views serving ORM reads without caching
  view-write-cached      cached views that also perform ORM writes
  missing-invalidation   models with cached views but no invalidation on save
  unversioned-cache-set  cache.set calls without a timeout or version
  no-cache-backend       no cache backend configured in settings

Exits 1 when any error-severity finding is reported, 2 when no Django
project can be located.`,
	RunE: runAnalyze,
}

var (
	invalidationApp  string
	invalidationSave bool
)

// invalidationCmd runs only the invalidation rule
var invalidationCmd = &cobra.Command{
	Use:   "check-invalidation",
	Short: "Check that cached models are invalidated on save",
	Long: `Evaluates only the missing-invalidation rule: every model whose data
is served by a cached view must clear the relevant cache keys, either in a
save() override or in a post_save/post_delete receiver.`,
	RunE: runCheckInvalidation,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeApp, "app", "", "Restrict analysis to one app")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Record this run in the scan history")

	invalidationCmd.Flags().StringVar(&invalidationApp, "app", "", "Restrict analysis to one app")
	invalidationCmd.Flags().BoolVar(&invalidationSave, "save", false, "Record this run in the scan history")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	inv, err := scanProject(ctx, analyzeApp)
	if err != nil {
		return err
	}

	timer := logging.StartTimer(logging.CategoryAnalyze, "rule evaluation")
	fs := newAnalyzer().Analyze(inv)
	timer.Stop()

	fs = filterFindings(fs, analyzeApp)
	report.WriteFindings(os.Stdout, fs, verbose)

	if analyzeSave {
		saveRun("analyze", started, inv, fs)
	}
	return exitForFindings(fs)
}

func runCheckInvalidation(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	inv, err := scanProject(ctx, invalidationApp)
	if err != nil {
		return err
	}

	fs := newAnalyzer().CheckInvalidation(inv)
	fs = filterFindings(fs, invalidationApp)
	report.WriteFindings(os.Stdout, fs, verbose)

	if invalidationSave {
		saveRun("check-invalidation", started, inv, fs)
	}
	return exitForFindings(fs)
}
