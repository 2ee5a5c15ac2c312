package config

import (
	"errors"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	AppName               = "checklist"
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "checklist.db"
	DefaultTitlePrefix    = "List"
	DefaultSwipeThreshold = 8
)

type Keymap struct {
	Quit           string `toml:"quit"`
	Add            string `toml:"add"`
	Up             string `toml:"up"`
	Down           string `toml:"down"`
	Toggle         string `toml:"toggle"`
	Edit           string `toml:"edit"`
	Archive        string `toml:"archive"`
	ArchiveChecked string `toml:"archive_checked"`
	History        string `toml:"history"`
	Settings       string `toml:"settings"`
	NextList       string `toml:"next_list"`
	PrevList       string `toml:"prev_list"`
	NewList        string `toml:"new_list"`
	Rename         string `toml:"rename"`
	DeleteList     string `toml:"delete_list"`
	Delete         string `toml:"delete"`
	Unarchive      string `toml:"unarchive"`
	ClearHistory   string `toml:"clear_history"`
	ResetSettings  string `toml:"reset_settings"`
	Confirm        string `toml:"confirm"`
	Cancel         string `toml:"cancel"`
}

type Config struct {
	DBPath          string `toml:"db_path"`
	LogDir          string `toml:"log_dir"`
	Debug           bool   `toml:"debug"`
	ResetOnMismatch bool   `toml:"reset_on_mismatch"`
	ListTitlePrefix string `toml:"list_title_prefix"`
	// SwipeThreshold is the horizontal mouse drag, in cells, past which the
	// view moves to the neighbouring list.
	SwipeThreshold int    `toml:"swipe_threshold"`
	Keys           Keymap `toml:"keys"`
}

// ResolveConfigPath returns $CHECKLIST_CONFIG when set, else config.toml in
// the user config directory.
func ResolveConfigPath() string {
	if p := os.Getenv("CHECKLIST_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, AppName, DefaultConfigFileName)
}

// LoadOrCreate reads the config at path, writing the defaults there first
// when the file does not exist. Relative db_path and log_dir values resolve
// against the config file's directory.
func LoadOrCreate(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg.resolve(path), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBName
	}
	if cfg.ListTitlePrefix == "" {
		cfg.ListTitlePrefix = DefaultTitlePrefix
	}
	if cfg.SwipeThreshold <= 0 {
		cfg.SwipeThreshold = DefaultSwipeThreshold
	}
	return cfg.resolve(path), nil
}

func (c Config) resolve(path string) Config {
	dir := filepath.Dir(path)
	if !filepath.IsAbs(c.DBPath) {
		c.DBPath = filepath.Join(dir, c.DBPath)
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if !filepath.IsAbs(c.LogDir) {
		c.LogDir = filepath.Join(dir, c.LogDir)
	}
	return c
}

func write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig() Config {
	return Config{
		DBPath:          DefaultDBName,
		LogDir:          "logs",
		ListTitlePrefix: DefaultTitlePrefix,
		SwipeThreshold:  DefaultSwipeThreshold,
		Keys: Keymap{
			Quit:           "q",
			Add:            "a",
			Up:             "k",
			Down:           "j",
			Toggle:         " ",
			Edit:           "e",
			Archive:        "x",
			ArchiveChecked: "X",
			History:        "H",
			Settings:       "S",
			NextList:       "l",
			PrevList:       "h",
			NewList:        "n",
			Rename:         "r",
			DeleteList:     "D",
			Delete:         "d",
			Unarchive:      "u",
			ClearHistory:   "C",
			ResetSettings:  "R",
			Confirm:        "enter",
			Cancel:         "esc",
		},
	}
}
