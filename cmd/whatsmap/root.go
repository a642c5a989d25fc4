package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rahul/whatsmap/pkg/config"
)

const defaultConfigPath = "config.json"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "whatsmap",
	Short: "Persona-aware real-estate briefings",
	Long: `whatsmap turns a free-text real-estate command into a persona-tagged briefing.
It classifies who is asking, compiles a plan of capability calls, runs them and
assembles the results into content blocks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		logger, err = newZapLogger(cfg.Logging)
		if err != nil {
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

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config.json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(askCmd, leadCmd, serveCmd, catalogCmd)
}

// loadConfig falls back to defaults when the default path does not exist.
// An explicitly given path must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	c, err := config.LoadConfig(path)
	if err == nil {
		return c, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func newZapLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
