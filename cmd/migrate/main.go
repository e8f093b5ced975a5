//go:build migrate

// Command migrate applies the SQL files under migrations/ with golang-migrate.
//
//	go run -tags migrate ./cmd/migrate up
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	sourceURL   string
	databaseURL string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply gamecredit database migrations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&sourceURL, "source", "file://migrations", "migration source URL")
	root.PersistentFlags().StringVar(&databaseURL, "database", "", "postgres URL (default: DATABASE_URL or DB_* env)")

	root.AddCommand(upCmd(), downCmd(), versionCmd(), forceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func open() (*migrate.Migrate, error) {
	dsn := databaseURL
	if dsn == "" {
		dsn = dsnFromEnv()
	}
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func dsnFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "gamecredit"),
		getEnv("DB_PASSWORD", "gamecredit"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "gamecredit"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// withMigrate opens an instance, runs fn and closes both handles.
func withMigrate(fn func(m *migrate.Migrate) error) error {
	m, err := open()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [N]",
		Short: "Apply all (or N) pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(func(m *migrate.Migrate) error {
				if len(args) == 0 {
					if err := ignoreNoChange(m.Up()); err != nil {
						return err
					}
				} else {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					if err := ignoreNoChange(m.Steps(n)); err != nil {
						return err
					}
				}
				fmt.Println("migrations applied")
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down [N]",
		Short: "Roll back the last (or N) migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				var err error
				if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
			}
			return withMigrate(func(m *migrate.Migrate) error {
				if err := ignoreNoChange(m.Steps(-n)); err != nil {
					return err
				}
				fmt.Printf("rolled back %d migration(s)\n", n)
				return nil
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(func(m *migrate.Migrate) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d, dirty %v\n", v, dirty)
				return nil
			})
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrate(func(m *migrate.Migrate) error {
				if err := m.Force(v); err != nil {
					return err
				}
				fmt.Printf("forced version %d\n", v)
				return nil
			})
		},
	}
}
