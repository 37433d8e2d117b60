package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const envFileFlag = "env-file"

func envFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		envFileFlag: &cobraflags.StringFlag{
			Name:  envFileFlag,
			Value: ".env",
			Usage: "Dotenv file loaded before reading the environment (skipped if missing)",
		},
	}
}

func newRootCmd(deps mainDeps) *cobra.Command {
	flags := envFlags()
	root := &cobra.Command{
		Use:   "api",
		Short: "Pottery sharing API server",
		Long: `Runs the HTTP API: accounts, posts with images, comments, likes,
showcases and the per-post activity stream.

Examples:
  api                          # serve using .env and the environment
  api --env-file prod.env      # serve with another dotenv file
  api migrate up               # apply pending schema migrations
  api migrate down             # revert the latest applied migration
  api migrate status           # show applied and pending versions`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(deps, flags[envFileFlag].GetString())
		},
	}
	cobraflags.RegisterMap(root, flags)

	root.AddCommand(newMigrateCmd(deps))
	return root
}

func newMigrateCmd(deps mainDeps) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Manage the database schema",
	}

	upFlags := envFlags()
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), deps, upFlags[envFileFlag].GetString(), func(ctx context.Context, m migrator) error {
				if err := m.MigrateUp(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
	cobraflags.RegisterMap(upCmd, upFlags)

	downFlags := envFlags()
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), deps, downFlags[envFileFlag].GetString(), func(ctx context.Context, m migrator) error {
				version, err := m.MigrateDown(ctx)
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to revert")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reverted migration %d\n", version)
				return nil
			})
		},
	}
	cobraflags.RegisterMap(downCmd, downFlags)

	statusFlags := envFlags()
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), deps, statusFlags[envFileFlag].GetString(), func(ctx context.Context, m migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status.CurrentVersion, status.TotalMigrations, status.PendingMigrations)
				return nil
			})
		},
	}
	cobraflags.RegisterMap(statusCmd, statusFlags)

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd)
	return migrateCmd
}

func withMigrator(ctx context.Context, deps mainDeps, envFile string, fn func(context.Context, migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := deps.loadConfig(envFile)
	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if pg != nil {
		defer pg.Close()
	}

	m, err := deps.newMigrator(pg)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return fn(ctx, m)
}

func printStatus(w io.Writer, current, total int, pending []int) {
	fmt.Fprintf(w, "current version: %d\n", current)
	fmt.Fprintf(w, "total migrations: %d\n", total)
	if len(pending) == 0 {
		fmt.Fprintln(w, "up to date")
		return
	}
	fmt.Fprintf(w, "pending: %v\n", pending)
}
