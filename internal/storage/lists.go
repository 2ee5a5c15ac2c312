package storage

import (
	"context"
	"database/sql"
	"errors"
)

type List struct {
	ID    int64
	Title string
}

// CreateList inserts a list and returns its id. A conflicting insert is
// ignored and reports id 0.
func (s *Store) CreateList(ctx context.Context, title string) (int64, error) {
	res, err := s.exec(ctx, "create list", tableLists, `INSERT OR IGNORE INTO lists (title) VALUES (?);`, title)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, wrap("create list", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create list", err)
	}
	return id, nil
}

func (s *Store) RenameList(ctx context.Context, id int64, title string) error {
	_, err := s.exec(ctx, "rename list", tableLists, `UPDATE lists SET title = ? WHERE id = ?;`, title, id)
	return err
}

// DeleteList removes a list; its items go with it through the foreign key
// cascade in the same statement. Deleting the last list is allowed.
func (s *Store) DeleteList(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "delete list", tableLists|tableItems, `DELETE FROM lists WHERE id = ?;`, id)
	return err
}

// ListIDs returns every list id in ascending order, never NoList.
func (s *Store) ListIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM lists WHERE id != ? ORDER BY id ASC;`, NoList)
	return ids, wrap("list ids", err)
}

// ListIDsAfter returns the ids greater than id, ascending.
func (s *Store) ListIDsAfter(ctx context.Context, id int64) ([]int64, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM lists WHERE id > ? ORDER BY id ASC;`, id)
	return ids, wrap("list ids after", err)
}

// ListIDsBefore returns the ids less than id, descending.
func (s *Store) ListIDsBefore(ctx context.Context, id int64) ([]int64, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM lists WHERE id < ? ORDER BY id DESC;`, id)
	return ids, wrap("list ids before", err)
}

// CountListsBefore returns the 0-based rank of id among all lists.
func (s *Store) CountListsBefore(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lists WHERE id < ?;`, id).Scan(&n)
	return n, wrap("count lists before", err)
}

func (s *Store) Lists(ctx context.Context) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM lists ORDER BY id;`)
	if err != nil {
		return nil, wrap("lists", err)
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.Title); err != nil {
			return nil, wrap("lists", err)
		}
		lists = append(lists, l)
	}
	return lists, wrap("lists", rows.Err())
}

func (s *Store) ListTitle(ctx context.Context, id int64) (string, error) {
	title, err := s.title(ctx, id)
	if err != nil {
		return "", wrap("list title", err)
	}
	if !title.Valid {
		return "", ErrNotFound
	}
	return title.String, nil
}

func (s *Store) WatchListCount(ctx context.Context) *Subscription[int] {
	return watch(ctx, s, "list count", tableLists, s.listCount)
}

// WatchTitle follows the title of one list; an invalid value means the list
// does not exist.
func (s *Store) WatchTitle(ctx context.Context, id int64) *Subscription[sql.NullString] {
	return watch(ctx, s, "list title", tableLists, func(ctx context.Context) (sql.NullString, error) {
		return s.title(ctx, id)
	})
}

func (s *Store) WatchLists(ctx context.Context) *Subscription[[]List] {
	return watch(ctx, s, "lists", tableLists, s.Lists)
}

func (s *Store) listCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lists;`).Scan(&n)
	return n, err
}

func (s *Store) title(ctx context.Context, id int64) (sql.NullString, error) {
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT title FROM lists WHERE id = ?;`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullString{}, nil
	}
	return title, err
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
