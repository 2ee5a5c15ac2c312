// Package storage persists lists, items and settings in SQLite and exposes
// live queries over them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// NoList is the "no selection" list id. AUTOINCREMENT starts at 1, so no
// stored list ever carries it.
const NoList int64 = 0

// ErrNotFound is returned by point reads of absent rows and by inserts whose
// parent list no longer exists.
var ErrNotFound = errors.New("not found")

// StorageError reports a failed persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	var se *StorageError
	if err == nil || errors.Is(err, ErrNotFound) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

type Options struct {
	// Logger receives migration and subscription diagnostics. Nil discards.
	Logger *log.Logger
	// ResetOnMismatch drops and recreates every table when the database was
	// written by a newer schema than this build knows.
	ResetOnMismatch bool
}

type Store struct {
	db  *sql.DB
	log *log.Logger
	hub *hub
}

func Open(dbPath string, opts Options) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Store{db: db, log: logger, hub: newHub()}
	if err := s.migrate(context.Background(), opts.ResetOnMismatch); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// exec runs a mutation and wakes every watcher of the touched tables.
func (s *Store) exec(ctx context.Context, op string, tables table, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	s.hub.notify(tables)
	return res, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	u.RawQuery = q.Encode()
	return u.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
