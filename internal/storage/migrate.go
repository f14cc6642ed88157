package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/tribegate/tribegate/internal/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration directions
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate applies (or reverts) the embedded migrations for the store's
// dialect. steps <= 0 means all pending. Each migration runs in its own
// transaction together with its schema_migrations bookkeeping.
func (s *Store) Migrate(ctx context.Context, direction string, steps int) (int, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return 0, fmt.Errorf("migration direction must be %q or %q, got %q", MigrateUp, MigrateDown, direction)
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	dir := path.Join("migrations", string(s.dialect))
	suffix := "." + direction + ".sql"
	files, err := fs.Glob(migrationsFS, path.Join(dir, "*"+suffix))
	if err != nil {
		return 0, fmt.Errorf("failed to find migration files: %w", err)
	}

	sort.Strings(files)
	if direction == MigrateDown {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	count := 0
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), suffix)
		if (direction == MigrateUp) == applied[version] {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}

		content, err := migrationsFS.ReadFile(file)
		if err != nil {
			return count, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		if err := s.runMigration(ctx, direction, version, string(content)); err != nil {
			return count, err
		}

		logger.Info(ctx, "applied migration", "version", version, "direction", direction)
		count++
	}

	return count, nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) runMigration(ctx context.Context, direction, version, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}

	if direction == MigrateUp {
		_, err = tx.ExecContext(ctx, s.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"), version, s.Now())
	} else {
		_, err = tx.ExecContext(ctx, s.Rebind("DELETE FROM schema_migrations WHERE version = ?"), version)
	}
	if err != nil {
		return fmt.Errorf("failed to update migrations table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return nil
}
