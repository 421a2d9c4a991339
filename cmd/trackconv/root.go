// Command trackconv converts object-tracking annotations between the
// native track JSON schema, kwcoco JSON, KPF/MEVA packet streams and the
// VIAME CSV convention.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dive-annotations/trackconv/internal/config"
	"github.com/dive-annotations/trackconv/internal/convert"
	"github.com/dive-annotations/trackconv/internal/logging"
	otelprovider "github.com/dive-annotations/trackconv/internal/otel"
	"github.com/dive-annotations/trackconv/internal/parser"
)

var (
	logger    *slog.Logger
	converter *convert.Converter
	metrics   *otelprovider.Provider

	flagConfigDir string
	flagLogToFile bool
	flagMetrics   bool
)

var rootCmd = &cobra.Command{
	Use:           "trackconv",
	Short:         "Convert object-tracking annotations between interchange formats",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(flagConfigDir); err != nil {
			return err
		}

		var logFile *os.File
		if flagLogToFile {
			logsDir := config.GetString("logsDir")
			if err := os.MkdirAll(logsDir, 0o755); err != nil {
				return fmt.Errorf("error creating logs dir: %w", err)
			}
			var err error
			logFile, err = os.Create(logging.LogFilePath(logsDir, time.Now()))
			if err != nil {
				return fmt.Errorf("error creating log file: %w", err)
			}
		}
		if logFile != nil {
			logger = logging.New(logFile, config.GetString("logLevel"))
		} else {
			logger = logging.New(nil, config.GetString("logLevel"))
		}

		// The meter provider must be installed before the converter
		// creates its counters.
		var err error
		metrics, err = otelprovider.New(otelprovider.Config{
			Enabled:     flagMetrics,
			ServiceName: "trackconv",
			Writer:      os.Stderr,
		})
		if err != nil {
			return err
		}

		p := parser.NewParser(logger,
			parser.WithDuplicateFramePolicy(
				parser.DuplicateFramePolicy(config.GetString("convert.duplicateFramePolicy"))),
			parser.WithTypeConflictPolicy(
				parser.TypeConflictPolicy(config.GetString("convert.attributeTypeConflict"))),
		)
		converter, err = convert.New(logger, p)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return metrics.Shutdown(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", ".",
		"directory containing trackconv.cfg.json")
	rootCmd.PersistentFlags().BoolVar(&flagLogToFile, "log-to-file", false,
		"also write logs to a session file under logsDir")
	rootCmd.PersistentFlags().BoolVar(&flagMetrics, "metrics", false,
		"dump conversion metrics to stderr on exit")
}
