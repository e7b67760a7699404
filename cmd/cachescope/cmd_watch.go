// Package main implements the cachescope CLI.
// This file contains the watch command.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cachescope/internal/logging"
	"cachescope/internal/report"
	"cachescope/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchApp string

// watchCmd re-analyzes the project whenever Python sources change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run analysis whenever Python sources change",
	Long: `Runs an initial analysis, then watches the app directories and
re-runs when .py files are created, modified, renamed, or removed. Rapid
saves are coalesced into one run. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchApp, "app", "", "Restrict watching to one app")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rerun := func() {
		inv, err := scanProject(ctx, watchApp)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			return
		}
		fs := filterFindings(newAnalyzer().Analyze(inv), watchApp)
		fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
		report.WriteFindings(os.Stdout, fs, verbose)
	}

	// Initial pass also discovers which directories to watch.
	inv, err := scanProject(ctx, watchApp)
	if err != nil {
		return err
	}
	fs := filterFindings(newAnalyzer().Analyze(inv), watchApp)
	report.WriteFindings(os.Stdout, fs, verbose)

	var dirs []string
	for _, app := range inv.Apps {
		dirs = append(dirs, filepath.Join(projectRoot, app.Path))
	}
	if len(dirs) == 0 {
		dirs = []string{projectRoot}
	}

	w, err := watch.New(projectRoot, dirs, cfg.Watch.DebounceDuration(), func(paths []string) {
		logging.Watch("%d files changed, re-analyzing", len(paths))
		logger.Info("Sources changed, re-analyzing", zap.Int("files", len(paths)))
		rerun()
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Watching %d directories for changes (Ctrl-C to stop)\n", len(dirs))
	<-ctx.Done()
	w.Stop()
	fmt.Println("\nStopped.")
	return nil
}
