// Package backend opens the configured conversation store.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/storage"
	"github.com/papercomputeco/chatkeep/pkg/storage/inmemory"
	"github.com/papercomputeco/chatkeep/pkg/storage/jsonfile"
	"github.com/papercomputeco/chatkeep/pkg/storage/sqlite"
	"github.com/papercomputeco/chatkeep/pkg/storage/watch"
)

// Open returns the store described by cfg. For the jsonfile backend the file
// is initialized with an empty conversation when missing.
func Open(ctx context.Context, cfg config.Storage, logger *zap.Logger) (storage.Store, error) {
	policy := storage.CorruptPolicy(cfg.OnCorrupt)

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Info("using in-memory storage")
		return inmemory.NewStore(), nil

	case config.BackendSQLite:
		path := cfg.Path
		if path == "" {
			var err error
			path, err = sqlite.DefaultPath()
			if err != nil {
				return nil, err
			}
		}

		store, err := sqlite.New(ctx, path, sqlite.Options{OnCorrupt: policy, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", path))
		return store, nil

	case config.BackendJSONFile, "":
		file, err := jsonfile.New(cfg.Path, jsonfile.Options{OnCorrupt: policy, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to create JSON file store: %w", err)
		}
		if err := file.EnsureExists(ctx); err != nil {
			return nil, err
		}
		logger.Info("using JSON file storage",
			zap.String("path", file.Path()),
			zap.Bool("watch", cfg.Watch),
		)

		if !cfg.Watch {
			return file, nil
		}
		watched, err := watch.New(file, file.Path(), logger)
		if err != nil {
			file.Close()
			return nil, err
		}
		return watched, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
