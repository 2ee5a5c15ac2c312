package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"checklist/internal/config"
	"checklist/internal/logger"
	"checklist/internal/session"
	"checklist/internal/storage"
	"checklist/internal/ui"
)

var version = "dev"

var CLI struct {
	Version         kong.VersionFlag
	Config          string `help:"Config file path." type:"path" env:"CHECKLIST_CONFIG"`
	DB              string `name:"db" help:"Database path, overrides the config file." type:"path"`
	Debug           bool   `help:"Log at debug level."`
	ResetOnMismatch bool   `help:"Drop all data when the database schema is newer than this build."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("checklist"),
		kong.Description("Checklists in the terminal"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := CLI.Config
	if configPath == "" {
		configPath = config.ResolveConfigPath()
	}
	firstLaunch := false
	if _, err := os.Stat(configPath); err != nil {
		firstLaunch = errors.Is(err, os.ErrNotExist)
	}
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if CLI.DB != "" {
		cfg.DBPath = CLI.DB
	}
	cfg.Debug = cfg.Debug || CLI.Debug
	cfg.ResetOnMismatch = cfg.ResetOnMismatch || CLI.ResetOnMismatch

	log, closer, err := logger.New(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closer.Close()

	store, err := storage.Open(cfg.DBPath, storage.Options{Logger: log, ResetOnMismatch: cfg.ResetOnMismatch})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctrl := session.New(store, session.Options{Logger: log, TitlePrefix: cfg.ListTitlePrefix})
	defer ctrl.Close()
	if err := ctrl.Bootstrap(context.Background()); err != nil {
		return err
	}
	log.Debug("started", "config", configPath, "db", cfg.DBPath, "list", ctrl.CurrentList())

	return ui.Run(ctrl, cfg, firstLaunch)
}
