package store

import (
	"context"
	"embed"
	"sort"
	"strings"

	"tropeminer/internal/services"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "migrate", "read migrations dir", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, services.Wrap(services.ErrDatabase, "store", "migrate", "read migration "+name, err)
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(name, ".sql"),
			sql:     string(data),
		})
	}
	return migrations, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "migrate", "begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return services.Wrap(services.ErrDatabase, "store", "migrate", "ensure schema_migrations", err)
	}

	for _, m := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version)
		if err := row.Scan(&count); err != nil {
			return services.Wrap(services.ErrDatabase, "store", "migrate", "scan migration version", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return services.Wrap(services.ErrDatabase, "store", "migrate", "apply migration "+m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return services.Wrap(services.ErrDatabase, "store", "migrate", "record migration "+m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrDatabase, "store", "migrate", "commit", err)
	}
	return nil
}
