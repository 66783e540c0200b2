package main

import (
	"fmt"
	"os"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/buildconfig"
	"github.com/FlexMeasures/flexmeasures/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose bool
	timeout time.Duration

	logger *zap.Logger

	// openBackend connects the commands to the database. Tests swap it out.
	openBackend = connect
)

var rootCmd = &cobra.Command{
	Use:   "fmctl",
	Short: "Manage a FlexMeasures installation",
	Long: `fmctl adds accounts, users, assets, weather sensors and annotations
to the FlexMeasures database, and computes reports from stored sensor data.

Configuration is read from the environment and the file named by
FLEXMEASURES_ENV (default .env).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return nil
		}
		if err := config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(config.LogLevel())
		if err != nil {
			level = zapcore.InfoLevel
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
		if logger, err = cfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fmctl version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "fmctl %s\n", buildconfig.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
