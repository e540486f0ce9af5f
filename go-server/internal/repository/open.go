package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/database"
)

// Open connects the backend selected by cfg.StoreBackend. The returned close
// func releases its connections.
func Open(ctx context.Context, cfg *config.Config) (URLRepository, func(), error) {
	logger := zap.L().With(zap.String("component", "repository"), zap.String("backend", cfg.StoreBackend))

	switch cfg.StoreBackend {
	case BackendPostgres:
		pool, err := database.NewPostgresClient(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		repo := NewPostgresURLRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return repo, pool.Close, nil

	case BackendRedis:
		client, err := database.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		repo, err := NewRedisURLRepository(client, cfg.RedisPrefix, cfg.NodeID)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		return repo, func() { client.Close() }, nil

	case BackendSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		repo, err := NewSQLiteURLRepository(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Opened SQLite database", zap.String("path", cfg.SQLitePath))
		return repo, func() { repo.Close() }, nil

	case BackendMemory:
		repo, err := NewMemoryURLRepository(cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("Using in-memory store; mappings are lost on restart")
		return repo, func() {}, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
}
