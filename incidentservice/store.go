package incidentservice

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/config"
	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/kvstore/memory"
	"github.com/rightsguard/incident-core/internal/kvstore/postgres"
	"github.com/rightsguard/incident-core/internal/kvstore/redis"
	"github.com/rightsguard/incident-core/internal/kvstore/sqlite"
	"github.com/rightsguard/incident-core/internal/localstate"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newStore opens the persistent store selected by cfg.StoreDriver.
func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*kvstore.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("memory store selected; data will not survive a restart")
		return kvstore.New(memory.New(), log), nopCloser{}, nil

	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			p, err := localstate.DBPath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		backend, err := sqlite.NewWithDB(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Str("path", path).Msg("sqlite store ready")
		return kvstore.New(backend, log), backend, nil

	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		backend, err := postgres.NewWithDB(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Msg("postgres store ready")
		return kvstore.New(backend, log), backend, nil

	case "redis":
		backend, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		log.Info().Msg("redis store ready")
		return kvstore.New(backend, log), backend, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
	}
}
