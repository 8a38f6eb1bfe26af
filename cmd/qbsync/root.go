package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/config"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/logger"
)

// RootOptions holds global flags and the state PersistentPreRunE builds from them
type RootOptions struct {
	ConfigFile string
	LogLevel   string

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand creates the qbsync command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "qbsync",
		Short:         "QuickBooks Web Connector sync service",
		Long:          "qbsync answers QuickBooks Web Connector SOAP calls and turns pending ledger events into qbXML requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewQWCCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func (o *RootOptions) load() error {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	o.cfg = cfg
	o.log = log
	return nil
}
