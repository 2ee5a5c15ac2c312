package storage

import (
	"context"
	"database/sql"
	"errors"
)

type Item struct {
	ID       int64
	Text     string
	Checked  bool
	Archived bool
	ListID   int64
}

const itemColumns = `id, text, is_checked, is_archived, list_id`

// AddItem inserts an unchecked, unarchived item into listID. The insert and
// the existence check on the list are one statement, so an item can never
// outlive a concurrently deleted list: it returns ErrNotFound instead.
func (s *Store) AddItem(ctx context.Context, listID int64, text string) (int64, error) {
	res, err := s.exec(ctx, "add item", tableItems,
		`INSERT OR IGNORE INTO items (text, is_checked, is_archived, list_id) SELECT ?, 0, 0, id FROM lists WHERE id = ?;`,
		text, listID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("add item", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("add item", err)
	}
	return id, nil
}

func (s *Store) Item(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?;`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, wrap("item", err)
}

func (s *Store) UpdateItemText(ctx context.Context, id int64, text string) error {
	_, err := s.exec(ctx, "update item text", tableItems, `UPDATE items SET text = ? WHERE id = ?;`, text, id)
	return err
}

func (s *Store) SetChecked(ctx context.Context, id int64, checked bool) error {
	_, err := s.exec(ctx, "set checked", tableItems, `UPDATE items SET is_checked = ? WHERE id = ?;`, boolInt(checked), id)
	return err
}

func (s *Store) SetArchived(ctx context.Context, id int64, archived bool) error {
	_, err := s.exec(ctx, "set archived", tableItems, `UPDATE items SET is_archived = ? WHERE id = ?;`, boolInt(archived), id)
	return err
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "delete item", tableItems, `DELETE FROM items WHERE id = ?;`, id)
	return err
}

func (s *Store) DeleteItemsForList(ctx context.Context, listID int64) error {
	_, err := s.exec(ctx, "delete list items", tableItems, `DELETE FROM items WHERE list_id = ?;`, listID)
	return err
}

// DeleteArchived removes archived items of every list.
func (s *Store) DeleteArchived(ctx context.Context) error {
	_, err := s.exec(ctx, "delete archived", tableItems, `DELETE FROM items WHERE is_archived = 1;`)
	return err
}

// ActiveItems returns the unarchived items of a list in insertion order.
func (s *Store) ActiveItems(ctx context.Context, listID int64) ([]Item, error) {
	return s.queryItems(ctx, "active items",
		`SELECT `+itemColumns+` FROM items WHERE is_archived = 0 AND list_id = ? ORDER BY id ASC;`, listID)
}

// ActiveItemsSorted returns unchecked items before checked ones, each group
// newest first.
func (s *Store) ActiveItemsSorted(ctx context.Context, listID int64) ([]Item, error) {
	return s.queryItems(ctx, "sorted active items",
		`SELECT `+itemColumns+` FROM items WHERE is_archived = 0 AND list_id = ? ORDER BY is_checked ASC, id DESC;`, listID)
}

func (s *Store) CheckedItems(ctx context.Context, listID int64) ([]Item, error) {
	return s.queryItems(ctx, "checked items",
		`SELECT `+itemColumns+` FROM items WHERE is_archived = 0 AND is_checked = 1 AND list_id = ? ORDER BY id DESC;`, listID)
}

// ArchivedItems returns archived items across all lists, newest first.
func (s *Store) ArchivedItems(ctx context.Context) ([]Item, error) {
	return s.queryItems(ctx, "archived items",
		`SELECT `+itemColumns+` FROM items WHERE is_archived = 1 ORDER BY id DESC;`)
}

func (s *Store) WatchActiveItems(ctx context.Context, listID int64) *Subscription[[]Item] {
	return watch(ctx, s, "active items", tableItems, func(ctx context.Context) ([]Item, error) {
		return s.ActiveItems(ctx, listID)
	})
}

func (s *Store) WatchActiveItemsSorted(ctx context.Context, listID int64) *Subscription[[]Item] {
	return watch(ctx, s, "sorted active items", tableItems, func(ctx context.Context) ([]Item, error) {
		return s.ActiveItemsSorted(ctx, listID)
	})
}

func (s *Store) WatchCheckedItems(ctx context.Context, listID int64) *Subscription[[]Item] {
	return watch(ctx, s, "checked items", tableItems, func(ctx context.Context) ([]Item, error) {
		return s.CheckedItems(ctx, listID)
	})
}

func (s *Store) WatchArchivedItems(ctx context.Context) *Subscription[[]Item] {
	return watch(ctx, s, "archived items", tableItems, s.ArchivedItems)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (Item, error) {
	var it Item
	var checked, archived int
	if err := r.Scan(&it.ID, &it.Text, &checked, &archived, &it.ListID); err != nil {
		return Item{}, err
	}
	it.Checked = checked == 1
	it.Archived = archived == 1
	return it, nil
}

func (s *Store) queryItems(ctx context.Context, op, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return items, nil
}
