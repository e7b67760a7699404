// Package main implements the cachescope CLI.
// This file contains the scan pipeline shared by all commands.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"cachescope/internal/analyzer"
	"cachescope/internal/findings"
	"cachescope/internal/logging"
	"cachescope/internal/project"
	"cachescope/internal/store"

	"go.uber.org/zap"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// scanProject runs the scanner over the resolved project root with
// configuration applied on top of the defaults.
func scanProject(ctx context.Context, app string) (*project.Inventory, error) {
	opts := project.DefaultScanOptions()
	opts.App = app
	if cfg.Scan.Workers > 0 {
		opts.Workers = cfg.Scan.Workers
	}
	if len(cfg.Scan.IgnorePatterns) > 0 {
		opts.IgnorePatterns = cfg.Scan.IgnorePatterns
	}
	if cfg.Scan.MaxFileBytes > 0 {
		opts.MaxFileBytes = cfg.Scan.MaxFileBytes
	}

	logger.Debug("Scanning project",
		zap.String("root", projectRoot),
		zap.String("app", app),
		zap.Int("workers", opts.Workers))

	timer := logging.StartTimer(logging.CategoryScan, "project scan")
	inv, err := project.NewScanner(projectRoot, opts).Scan(ctx)
	timer.Stop()
	if err != nil {
		return nil, err
	}
	logging.Scan("scanned %d files, %d models, %d views", inv.FileCount, len(inv.Models), len(inv.Views))
	logger.Info("Scan complete",
		zap.Int("files", inv.FileCount),
		zap.Int("apps", len(inv.Apps)),
		zap.Int("models", len(inv.Models)),
		zap.Int("views", len(inv.Views)))
	return inv, nil
}

// newAnalyzer builds an analyzer from the loaded configuration.
func newAnalyzer() *analyzer.Analyzer {
	return analyzer.New(analyzer.Options{Rules: cfg.Analysis.Rules})
}

// filterFindings scopes findings to the requested app and drops anything
// below the configured severity floor. The scanner already restricts what it
// parses, but project-wide rules can still report outside the app.
func filterFindings(fs []findings.Finding, app string) []findings.Finding {
	fs = findings.FilterApp(fs, app)
	min, err := findings.ParseSeverity(cfg.Analysis.MinSeverity)
	if err != nil {
		return fs
	}
	return findings.FilterSeverity(fs, min)
}

// saveRun records the run in the history database. History is a
// convenience; failures warn and never fail the command.
func saveRun(command string, started time.Time, inv *project.Inventory, fs []findings.Finding) {
	st, err := store.Open(cfg.DatabasePath(projectRoot))
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("history unavailable: %v", err)
		return
	}
	defer st.Close()

	run := store.NewRun(command, started, inv.FileCount, fs)
	if err := st.SaveRun(run, fs); err != nil {
		logging.Get(logging.CategoryStore).Warn("could not save run: %v", err)
		return
	}
	logging.Store("saved run %s (%d findings)", run.ID, len(fs))
}

// openStore opens the history database for read commands.
func openStore() (*store.Store, error) {
	return store.Open(cfg.DatabasePath(projectRoot))
}

// exitForFindings maps error-severity findings to a non-zero exit.
func exitForFindings(fs []findings.Finding) error {
	if findings.HasErrors(fs) {
		return errErrorFindings
	}
	return nil
}
