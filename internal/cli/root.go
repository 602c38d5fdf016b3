package cli

import (
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/config"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// NewRootCommand creates the root command of the ebaysync binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "ebaysync",
		Short:   "eBay and core delta synchronisation",
		Long:    "Keeps eBay listings, orders and returns reconciled with the core inventory system.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel != "" && !isValidLevel(opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, validLevels)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to a config file (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd
}

var validLevels = []string{"debug", "info", "warn", "error"}

func isValidLevel(level string) bool {
	for _, l := range validLevels {
		if l == level {
			return true
		}
	}
	return false
}

// load reads the configuration and builds the base logger.
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(o.ConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
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
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
