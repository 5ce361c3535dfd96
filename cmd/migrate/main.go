package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sponsorchain.org/internal/migrate"
)

const (
	defaultMigrationsDir = "ops/migrations/sql"
	defaultSeedsDir      = "ops/migrations/seeds"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn           string
		migrationsDir string
		seedsDir      string
	)

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply sponsorchain treasury schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("SPONSORCHAIN_PG_DSN"), "Postgres DSN (defaults to SPONSORCHAIN_PG_DSN)")
	root.PersistentFlags().StringVar(&migrationsDir, "migrations", defaultMigrationsDir, "directory with .up.sql/.down.sql files")
	root.PersistentFlags().StringVar(&seedsDir, "seeds", defaultSeedsDir, "directory with seed .sql files")

	withManager := func(run func(cmd *cobra.Command, mgr *migrate.Manager) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("database DSN is required (--dsn or SPONSORCHAIN_PG_DSN)")
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping db: %w", err)
			}
			return run(cmd, migrate.NewManager(db, migrationsDir, seedsDir))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				return mgr.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				return mgr.Down(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply demo seed data",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				return mgr.Seed(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				applied, err := mgr.Status(cmd.Context())
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					cmd.Println("no migrations applied")
					return nil
				}
				for _, name := range applied {
					cmd.Println(name)
				}
				return nil
			}),
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
