package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Account string
	Kinds   []string
}

// runTarget is the validated form of RunOptions
type runTarget struct {
	accountID uuid.UUID // uuid.Nil means every active account
	kinds     []delta.SyncKind
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute reconciliation runs once",
		Long: `Execute reconciliation runs inline and print one JSON report per run.

Without --account every active account is synced. Without --kind the
configured kinds run in order.

Example:
  ebaysync run --account 2f1c0a9e-6a43-4c53-9d0c-0c3f4b1c8d21 --kind orders_from_marketplace
  ebaysync run --kind products_from_core`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := opts.target()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), opts.RootOptions, target, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Account, "account", "", "account id to sync (default all active accounts)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "sync kind, repeatable (default the configured kinds)")

	return cmd
}

func (o *RunOptions) target() (runTarget, error) {
	var t runTarget
	if o.Account != "" {
		id, err := uuid.Parse(o.Account)
		if err != nil {
			return t, fmt.Errorf("invalid account %q: %w", o.Account, err)
		}
		t.accountID = id
	}
	for _, raw := range o.Kinds {
		kind, err := delta.ParseSyncKind(raw)
		if err != nil {
			return t, err
		}
		t.kinds = append(t.kinds, kind)
	}
	return t, nil
}

func runOnce(ctx context.Context, rootOpts *RootOptions, target runTarget, out io.Writer) error {
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

	kinds := target.kinds
	if len(kinds) == 0 {
		kinds = cfg.Sync.Kinds
	}
	accounts := []uuid.UUID{target.accountID}
	if target.accountID == uuid.Nil {
		active, err := app.Store.Accounts().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		accounts = accounts[:0]
		for _, a := range active {
			accounts = append(accounts, a.ID)
		}
	}

	enc := json.NewEncoder(out)
	var failed error
	for _, accountID := range accounts {
		for _, kind := range kinds {
			report, err := app.Runner.Execute(ctx, accountID, kind)
			if errors.Is(err, reconcile.ErrRunInProgress) {
				obs.logger.Info("Run skipped, another run holds the lock",
					zap.String("account_id", accountID.String()),
					zap.String("kind", string(kind)))
				continue
			}
			if err != nil {
				failed = errors.Join(failed, fmt.Errorf("%s %s: %w", accountID, kind, err))
				continue
			}
			if err := enc.Encode(report); err != nil {
				return err
			}
		}
	}
	return failed
}
