package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/config"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// MigrateOptions holds global flags of the migrate binary.
type MigrateOptions struct {
	RootOptions
	Path string
}

// NewMigrateCommand creates the root command of the migrate binary.
func NewMigrateCommand() *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sync store schema",
		Long: `Apply, roll back and author the SQL migrations of the sync store.

Example:
  migrate up
  migrate steps -- -1
  migrate create add_refund_index "Speeds up refund lookups"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to a config file (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "", "migrations directory (default ./migrations)")

	withMigrator := func(run func(m *migration.Migrator, args []string, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(func(m *migration.Migrator) error {
				return run(m, args, cmd.OutOrStdout())
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string, out io.Writer) error {
				st, err := m.Up()
				if err != nil {
					return err
				}
				return printJSON(out, st)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string, out io.Writer) error {
				st, err := m.Down()
				if err != nil {
					return err
				}
				return printJSON(out, st)
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, negative n rolls back",
			Args:  cobra.ExactArgs(1),
			PreRunE: func(cmd *cobra.Command, args []string) error {
				_, err := parseSteps(args[0])
				return err
			},
			RunE: withMigrator(func(m *migration.Migrator, args []string, out io.Writer) error {
				n, _ := parseSteps(args[0])
				st, err := m.Steps(n)
				if err != nil {
					return err
				}
				return printJSON(out, st)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string, out io.Writer) error {
				st, err := m.Version()
				if err != nil {
					return err
				}
				return printJSON(out, st)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			PreRunE: func(cmd *cobra.Command, args []string) error {
				_, err := parseForceVersion(args[0])
				return err
			},
			RunE: withMigrator(func(m *migration.Migrator, args []string, out io.Writer) error {
				v, _ := parseForceVersion(args[0])
				if err := m.Force(v); err != nil {
					return err
				}
				st, err := m.Version()
				if err != nil {
					return err
				}
				return printJSON(out, st)
			}),
		},
		&cobra.Command{
			Use:   "create <name> [description]",
			Short: "Create an empty up/down migration pair",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := migration.FindDir(opts.Path)
				if err != nil {
					return err
				}
				desc := ""
				if len(args) > 1 {
					desc = args[1]
				}
				mf, err := migration.CreateMigration(dir, args[0], desc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mf.UpPath)
				fmt.Fprintln(cmd.OutOrStdout(), mf.DownPath)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the migrations of the migrations directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := migration.FindDir(opts.Path)
				if err != nil {
					return err
				}
				ms, err := migration.ListMigrations(dir)
				if err != nil {
					return err
				}
				for _, m := range ms {
					marker := ""
					if !m.HasDown {
						marker = " (no down)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", m.FileName(), marker)
				}
				return nil
			},
		},
	)

	return cmd
}

func (o *MigrateOptions) withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, err := config.LoadFrom(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	dir, err := migration.FindDir(o.Path)
	if err != nil {
		return err
	}
	log.Info("Using migrations", zap.String("path", dir))

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, dir, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func parseSteps(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid step count %q: want a non-zero integer", raw)
	}
	return n, nil
}

func parseForceVersion(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < -1 {
		return 0, fmt.Errorf("invalid version %q: want -1 or a version number", raw)
	}
	return v, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
