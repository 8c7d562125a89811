package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alexishuch/availability-poll/internal/app/migrate"
	"github.com/alexishuch/availability-poll/pkg/config"
	"github.com/alexishuch/availability-poll/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		timeout time.Duration
		dir     string
	)
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the availability poll database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "command timeout")
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (defaults to the embedded migrations)")

	withRunner := func(fn func(context.Context, migrate.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.LoadAPIConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			log := logger.New("migrate", config.ParseLevel(cfg.LogLevel))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			runner, err := migrate.New(pool, dir, log)
			if err != nil {
				return err
			}
			if err := runner.Ping(ctx); err != nil {
				return err
			}
			if err := fn(ctx, runner); err != nil {
				return err
			}
			log.Info("migration command completed", "command", cmd.Name())
			return nil
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r migrate.Runner) error {
			return r.Ensure(ctx)
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r migrate.Runner) error {
			return r.Status(ctx)
		}),
	})

	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration, or down to --target",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, r migrate.Runner) error {
			return r.Down(ctx, target)
		}),
	}
	down.Flags().Int64Var(&target, "target", 0, "target version (0 rolls back one step)")
	root.AddCommand(down)

	return root
}
