package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrSchemaTooNew is returned by Open when the database was written by a
// newer build and resetting was not requested.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

type migration struct {
	version int
	name    string
	sql     string
}

// readMigrations parses NNN_name.sql files, sorted by version.
func readMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []migration
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(file.Name(), "_", 2)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid migration filename %s (expected NNN_name.sql)", file.Name())
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil || version < 1 {
			return nil, fmt.Errorf("invalid version in migration filename %s", file.Name())
		}
		content, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file.Name(), err)
		}
		migrations = append(migrations, migration{
			version: version,
			name:    strings.TrimSuffix(parts[1], ".sql"),
			sql:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version == migrations[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d", migrations[i].version)
		}
	}
	return migrations, nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);`); err != nil {
		return 0, err
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version;`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func (s *Store) migrate(ctx context.Context, resetOnMismatch bool) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	return s.migrateFrom(ctx, sub, resetOnMismatch)
}

func (s *Store) migrateFrom(ctx context.Context, fsys fs.FS, resetOnMismatch bool) error {
	migrations, err := readMigrations(fsys)
	if err != nil {
		return wrap("migrate", err)
	}
	if len(migrations) == 0 {
		return nil
	}
	latest := migrations[len(migrations)-1].version

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return wrap("migrate", err)
	}
	if current > latest {
		if !resetOnMismatch {
			return wrap("migrate", fmt.Errorf("%w (database %d, supported %d)", ErrSchemaTooNew, current, latest))
		}
		s.log.Warn("dropping all tables", "schema_version", current, "supported", latest)
		if err := s.dropAll(ctx); err != nil {
			return wrap("reset schema", err)
		}
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return wrap("migrate", err)
		}
		s.log.Info("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version;`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear version in migration %d: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?);`, m.version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set version in migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

func (s *Store) dropAll(ctx context.Context) error {
	const ddl = `
DROP TABLE IF EXISTS items;
DROP TABLE IF EXISTS lists;
DROP TABLE IF EXISTS settings;
DELETE FROM schema_version;`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}
