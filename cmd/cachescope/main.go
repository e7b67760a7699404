// Package main implements the cachescope CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"cachescope/internal/config"
	"cachescope/internal/logging"
	"cachescope/internal/project"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	projectDir string
	verbose    bool
	configPath string

	// Resolved per invocation
	projectRoot string
	cfg         config.Config

	// Logger
	logger *zap.Logger
)

// errErrorFindings marks a run that completed but reported error-severity
// findings. main maps it to exit code 1 without treating it as a crash.
var errErrorFindings = errors.New("error-severity findings reported")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cachescope",
	Short: "cachescope - Django cache usage analyzer",
	Long: `cachescope statically analyzes a Django project's cache usage.

It walks the Python sources of every first-party app and flags views that
serve ORM reads without caching, cached views that perform writes, and
models whose cached data is never invalidated on save.

Run it from anywhere inside a Django project, or point it at one with
--project.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Help and completion need no project.
		switch cmd.Name() {
		case "help", "completion", "version":
			return nil
		}
		if cmd.Name() == cmd.Root().Name() {
			return nil
		}

		dir := projectDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("determine working directory: %w", err)
			}
			dir = wd
		}
		root, err := project.Locate(dir)
		if err != nil {
			return err
		}
		projectRoot = root

		cfg, err = config.Load(projectRoot, configPath)
		if err != nil {
			return err
		}

		if err := logging.Initialize(projectRoot, configPath); err != nil {
			// File logging is best effort; the run still proceeds.
			fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logging.Boot("project root: %s", projectRoot)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "Django project directory (default: walk up from cwd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <project>/.cachescope/config.yaml)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(invalidationCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errErrorFindings) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if errors.Is(err, project.ErrNoProject) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
