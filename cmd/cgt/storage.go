package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/database"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/cgtracker/cgt/internal/storage/csvdir"
	"github.com/cgtracker/cgt/internal/storage/gormstore"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// createStorageBackend builds and initializes the backend selected by
// storageCfg.Type. The returned closer releases connections held for it.
func createStorageBackend(storageCfg config.StorageConfig, zlog zerolog.Logger, log *slog.Logger) (storage.Backend, io.Closer, error) {
	var (
		backend storage.Backend
		closer  io.Closer = nopCloser{}
	)

	switch storageCfg.Type {
	case "csv", "":
		backend = csvdir.New(storageCfg.CSV)
		log.Debug("CSV storage backend selected", "dir", storageCfg.CSV.Dir)

	case "sqlite", "postgres":
		dbManager := database.NewManager(zlog.With().Str("component", "database").Logger())
		if err := dbManager.Connect(storageCfg); err != nil {
			return nil, nil, err
		}
		backend = gormstore.New(gormstore.Dependencies{
			DB:      dbManager.DB,
			Project: storageCfg.Project,
			Backend: storageCfg.Type,
			Logger:  log,
		})
		closer = dbManager
		log.Debug("Database storage backend selected", "type", storageCfg.Type, "project", storageCfg.Project)

	default:
		return nil, nil, fmt.Errorf("unsupported storage type %q", storageCfg.Type)
	}

	if err := backend.Init(); err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	return backend, closer, nil
}
