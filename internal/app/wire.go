package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"maskid/internal/avatar"
	"maskid/internal/domain"
	backupsvc "maskid/internal/services/backup"
	personasvc "maskid/internal/services/persona"
	"maskid/internal/store"
	"maskid/internal/store/sqlite"
)

// sqliteFile is the database file name under the home directory.
const sqliteFile = "maskid.db"

// Wire bundles the store, avatar cache and services for the CLI.
type Wire struct {
	Config   Config
	Logger   *slog.Logger
	Store    domain.PersonaStore
	Avatars  domain.AvatarCache
	Personas domain.PersonaService
	Backup   domain.BackupService

	closers []func() error
}

// NewWire constructs the dependency graph from cfg.
func NewWire(ctx context.Context, cfg Config, logger *slog.Logger) (*Wire, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Wire{Config: cfg, Logger: logger}

	// durable is the store's own avatar cache, used when no Redis URL is set.
	var durable domain.AvatarCache
	switch cfg.Store {
	case StoreMemory:
		w.Store = store.NewMemoryStore()
	case StoreFile:
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			return nil, fmt.Errorf("create home: %w", err)
		}
		fileStore := store.NewFileStore(cfg.Home)
		w.Store = fileStore
		durable = fileStore
	case StoreSQLite:
		if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
			return nil, fmt.Errorf("create home: %w", err)
		}
		s, err := sqlite.Open(ctx, filepath.Join(cfg.Home, sqliteFile))
		if err != nil {
			return nil, err
		}
		w.Store = s
		durable = s
		w.closers = append(w.closers, s.Close)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch {
	case cfg.RedisURL != "":
		client, err := avatar.Dial(ctx, cfg.RedisURL)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.Avatars = avatar.NewRedisCache(client, cfg.AvatarTTL)
		w.closers = append(w.closers, client.Close)
	case durable != nil:
		w.Avatars = durable
	default:
		w.Avatars = avatar.NewMemoryCache()
	}

	personas := personasvc.New(w.Store, w.Avatars, personasvc.WithLogger(logger.With("component", "persona")))
	w.Personas = personas
	w.Backup = backupsvc.New(w.Store, personas, backupsvc.WithLogger(logger.With("component", "backup")))

	logger.DebugContext(ctx, "wired", slog.String("store", cfg.Store), slog.Bool("redis", cfg.RedisURL != ""))
	return w, nil
}

// Close releases the store and cache connections.
func (w *Wire) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.closers = nil
	return errors.Join(errs...)
}
