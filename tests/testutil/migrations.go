package testutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationsDir returns the absolute path of the repository's migrations/.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// RunMigrations applies every up migration, the same files cmd/migrator runs.
func RunMigrations(connString string) error {
	m, err := migrate.New("file://"+MigrationsDir(), connString)
	if err != nil {
		return fmt.Errorf("migration setup failed: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}
