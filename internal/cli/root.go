// Package cli implements the sensorlake command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/malbeclabs/sensorlake/pkg/config"
	"github.com/malbeclabs/sensorlake/pkg/logger"
	"github.com/malbeclabs/sensorlake/pkg/metrics"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(info BuildInfo) ExitCode {
	rootCmd := NewRootCmd(info)
	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sensorlake",
		Short:   "Ask questions about, and draw charts of, temperature and humidity sensor data.",
		Version: fmt.Sprintf("%s (commit %s, built %s)", info.Version, info.Commit, info.Date),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.Date).Set(1)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.StringP("config", "c", "", "path to a YAML config file")
	flags.String("model", "", fmt.Sprintf("model name (env: %s, default %s)", config.EnvModel, config.DefaultModel))
	flags.String("table", "", fmt.Sprintf("DynamoDB table holding the readings (env: %s, default %s)", config.EnvTable, config.DefaultTable))
	flags.String("region", "", fmt.Sprintf("AWS region of the table (env: %s, default %s)", config.EnvAWSRegion, config.DefaultAWSRegion))

	rootCmd.AddCommand(
		NewServeCmd().Command(),
		NewMCPCmd(info).Command(),
		NewAskCmd().Command(),
		NewShowCmd().Command(),
		NewExportCmd().Command(),
	)
	return rootCmd
}

// setup builds the logger and the validated config shared by every
// subcommand. Logs go to stderr so command output stays clean.
func setup(cmd *cobra.Command) (*slog.Logger, *config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	path, err := flags.GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	log := logger.NewWithWriter(os.Stderr, verbose)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := overrideStrings(flags, map[string]*string{
		"model":  &cfg.Model,
		"table":  &cfg.Table,
		"region": &cfg.AWSRegion,
	}); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return log, cfg, nil
}

// overrideStrings copies each explicitly set flag into its destination.
func overrideStrings(flags *pflag.FlagSet, dsts map[string]*string) error {
	for name, dst := range dsts {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	return nil
}
