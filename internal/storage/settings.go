package storage

import (
	"context"
	"database/sql"
	"errors"
)

// Recognized setting names.
const (
	SettingSortByChecked   = "sortByChecked"
	SettingAutoHideChecked = "autoHideChecked"
	SettingAutoLineBreak   = "autoLineBreak"
)

// SettingNames lists every recognized setting in seeding order.
var SettingNames = []string{SettingSortByChecked, SettingAutoHideChecked, SettingAutoLineBreak}

// CreateSetting inserts a setting unless one with that name already exists.
func (s *Store) CreateSetting(ctx context.Context, name string, enabled bool) error {
	_, err := s.exec(ctx, "create setting", tableSettings,
		`INSERT OR IGNORE INTO settings (name, state) VALUES (?, ?);`, name, boolInt(enabled))
	return err
}

func (s *Store) SetSetting(ctx context.Context, name string, enabled bool) error {
	_, err := s.exec(ctx, "set setting", tableSettings,
		`UPDATE settings SET state = ? WHERE name = ?;`, boolInt(enabled), name)
	return err
}

func (s *Store) Settings(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, state FROM settings;`)
	if err != nil {
		return nil, wrap("settings", err)
	}
	defer rows.Close()

	settings := map[string]bool{}
	for rows.Next() {
		var name string
		var state int
		if err := rows.Scan(&name, &state); err != nil {
			return nil, wrap("settings", err)
		}
		settings[name] = state == 1
	}
	return settings, wrap("settings", rows.Err())
}

func (s *Store) WatchSettingCount(ctx context.Context) *Subscription[int] {
	return watch(ctx, s, "setting count", tableSettings, func(ctx context.Context) (int, error) {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings;`).Scan(&n)
		return n, err
	})
}

// WatchSetting follows one setting; a missing row reads as disabled.
func (s *Store) WatchSetting(ctx context.Context, name string) *Subscription[bool] {
	return watch(ctx, s, "setting", tableSettings, func(ctx context.Context) (bool, error) {
		var state int
		err := s.db.QueryRowContext(ctx, `SELECT state FROM settings WHERE name = ?;`, name).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return state == 1, err
	})
}
