package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/strike_engine/internal/config"
	"github.com/eddiefleurent/strike_engine/internal/logging"
)

// app holds what every subcommand shares.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "scanner",
		Short: "Construct and rank option strategies from live or synthetic chains",
		Long: `scanner resolves strikes from option chains, builds the configured strategy
templates for each symbol's market direction and ranks the results.

Without --config the built-in defaults are used with a synthetic market.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "path to a YAML configuration file")
	root.PersistentFlags().Bool("json", false, "output in JSON format")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(newScanCmd(a))
	root.AddCommand(newTemplatesCmd(a))
	root.AddCommand(newSnapshotCmd(a))

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid default config: %w", err)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.logger = logging.NewLoggerWithConfig(cfg.Logging)
	a.logger.Debug().
		Str("mode", cfg.Environment.Mode).
		Str("source", cfg.MarketData.Source).
		Str("storage", cfg.Storage.Backend).
		Msg("configuration loaded")
	return nil
}
