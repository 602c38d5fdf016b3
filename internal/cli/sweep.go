package cli

import (
	"context"
	"encoding/json"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one stuck-publish and dirty-mark sweep",
		Long: `Fail publishes stuck in progress past the configured timeout, push pending
dirty marks to core and print the sweep report as JSON.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, base, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(base) }()

			obs, err := setupObservability(ctx, cfg, base)
			if err != nil {
				return err
			}
			defer obs.shutdown(context.Background())

			app, err := buildApp(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			report := app.Sweeper.RunOnce(ctx)
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
}
