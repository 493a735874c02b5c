package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hackgods/teleconsult-scheduling/internal/db"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the scheduling database schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("dsn", os.Getenv("POSTGRES_DSN"), "Postgres connection string (defaults to POSTGRES_DSN)")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Give up after this long")

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(cmd *cobra.Command) (context.Context, context.CancelFunc, *pgxpool.Pool, error) {
	dsn, _ := cmd.Flags().GetString("dsn")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if dsn == "" {
		return nil, nil, nil, errors.New("no database: pass --dsn or set POSTGRES_DSN")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, pool, nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-8d %-32s %-8s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
}
