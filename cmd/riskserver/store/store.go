// Package store creates the prediction store and the matching dashboard
// aggregator for the configured backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/glucoguard/cmd/riskserver/config"
	"github.com/HatiCode/glucoguard/pkg/analytics"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

// New opens the configured backend and initializes its schema. SQL
// backends are summarized with SQL aggregates; the others stream records
// through an in-process accumulator.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, analytics.Aggregator, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Storage {
	case config.StorageMemory:
		logger.Info("using in-memory storage")
		store = storage.NewMemoryStore()

	case config.StorageSQLite:
		logger.Info("using SQLite storage", "path", cfg.SQLitePath)
		store, err = storage.OpenSQL(ctx, storage.SQLite, cfg.SQLitePath)

	case config.StoragePostgres:
		logger.Info("using PostgreSQL storage")
		store, err = storage.OpenSQL(ctx, storage.Postgres, cfg.PostgresDSN)

	case config.StorageRedis:
		logger.Info("using Redis storage",
			"address", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"prefix", cfg.RedisPrefix,
		)
		store, err = storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)

	default:
		return nil, nil, fmt.Errorf("invalid storage backend %q", cfg.Storage)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage, err)
	}

	if err := store.InitSchema(ctx); err != nil {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
		return nil, nil, fmt.Errorf("initialize %s store: %w", cfg.Storage, err)
	}

	return store, aggregatorFor(store), nil
}

func aggregatorFor(store storage.Store) analytics.Aggregator {
	if sqlStore, ok := store.(*storage.SQLStore); ok {
		return analytics.NewSQLAggregator(sqlStore)
	}
	return analytics.NewRecordAggregator(store)
}
