package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var (
	databaseURL    string
	migrationsPath string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrator",
		Short:        "Apply billing schema migrations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	root.PersistentFlags().StringVar(&migrationsPath, "path", "./migrations", "Path to migration files")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := ignoreNoChange(m.Up()); err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				cmd.Println("Migrations applied successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := ignoreNoChange(m.Down()); err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				cmd.Println("Migrations rolled back successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, or roll back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be an integer: %w", err)
				}
				if err := ignoreNoChange(m.Steps(n)); err != nil {
					return fmt.Errorf("migration steps failed: %w", err)
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("version must be an integer: %w", err)
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force failed: %w", err)
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				return printVersion(cmd, m)
			}),
		},
	)
	return root
}

func withMigrate(fn func(*cobra.Command, *migrate.Migrate, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if databaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		m, err := migrate.New("file://"+migrationsPath, databaseURL)
		if err != nil {
			return fmt.Errorf("migration setup failed: %w", err)
		}
		defer m.Close()
		return fn(cmd, m, args)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printVersion(cmd *cobra.Command, m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		cmd.Println("No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	cmd.Printf("Version %d (dirty: %t)\n", v, dirty)
	return nil
}
