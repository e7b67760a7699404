// Package main implements the cachescope CLI.
// This file contains the report and inspect commands.
package main

import (
	"fmt"
	"os"

	"cachescope/internal/logging"
	"cachescope/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reportOutput string
	reportApp    string
)

// reportCmd writes the full analysis as a JSON document
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a full JSON report of project structure and findings",
	Long: `Scans the project, evaluates all rules, and writes a JSON document
containing the settings summary, discovered apps, models, views, forms,
signal receivers, and all findings.

Without --output the document is written to stdout.`,
	RunE: runReport,
}

var (
	inspectJSON bool
	inspectApp  string
)

// inspectCmd prints the discovered project structure without running rules
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the discovered project structure",
	Long: `Scans the project and prints what was found: settings, installed
apps, models with their fields, views by kind, forms, and signal receivers.
No rules are evaluated.`,
	RunE: runInspect,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to this file instead of stdout")
	reportCmd.Flags().StringVar(&reportApp, "app", "", "Restrict the report to one app")

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Emit the structure as JSON")
	inspectCmd.Flags().StringVar(&inspectApp, "app", "", "Restrict inspection to one app")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	inv, err := scanProject(ctx, reportApp)
	if err != nil {
		return err
	}

	fs := filterFindings(newAnalyzer().Analyze(inv), reportApp)
	doc := report.BuildDocument(inv, fs)

	if err := report.WriteJSONFile(reportOutput, doc); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if reportOutput != "" {
		logging.Report("report written to %s", reportOutput)
		logger.Info("Report written",
			zap.String("path", reportOutput),
			zap.Int("findings", len(fs)))
		fmt.Printf("Report written to %s (%d findings)\n", reportOutput, len(fs))
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	inv, err := scanProject(ctx, inspectApp)
	if err != nil {
		return err
	}

	if inspectJSON || cfg.Report.Format == "json" {
		doc := report.BuildDocument(inv, nil)
		return report.WriteJSON(os.Stdout, doc)
	}
	report.WriteSummary(os.Stdout, inv)
	return nil
}
