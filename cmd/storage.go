package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/database/mock"
	"github.com/kozaktomas/companion/internal/database/postgres"
	"github.com/kozaktomas/companion/internal/database/redis"
)

// stores are the repositories a command works with.
type stores struct {
	people     database.PersonWriter
	tasks      database.TaskWriter
	encounters database.EncounterWriter
	settings   database.SettingsStore // nil when no settings backend is available
}

// initStorage registers the storage backend and returns its repositories
// together with a cleanup func. memory selects the in-process store.
func initStorage(ctx context.Context, cfg *config.Config, memory bool, log *zap.Logger) (*stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if memory {
		mock.Register()
		log.Info("using in-memory storage, data is lost on exit")
	} else {
		if cfg.Database.URL == "" {
			return nil, nil, errors.New("DATABASE_URL environment variable is required")
		}
		if err := postgres.Initialize(&cfg.Database, log.Named("postgres")); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		closers = append(closers, func() {
			if err := postgres.GetGlobalPool().Close(); err != nil {
				log.Warn("closing database", zap.Error(err))
			}
		})
		log.Info("using PostgreSQL storage")
	}

	if cfg.Redis.Addr != "" {
		if store := connectRedisSettings(ctx, &cfg.Redis, log); store != nil {
			redis.Register(store)
			closers = append(closers, store.Close)
		}
	}

	s, err := currentStores(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, cleanup, nil
}

// connectRedisSettings returns nil when Redis can't be reached; settings then
// stay with the primary backend.
func connectRedisSettings(ctx context.Context, cfg *config.RedisConfig, log *zap.Logger) *redis.SettingsStore {
	store, err := redis.NewSettingsStore(cfg)
	if err != nil {
		log.Warn("redis settings store disabled", zap.Error(err))
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		log.Warn("redis settings store disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		return nil
	}
	log.Info("settings stored in Redis", zap.String("addr", cfg.Addr))
	return store
}

func currentStores(ctx context.Context) (*stores, error) {
	people, err := database.GetPersonWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("people storage: %w", err)
	}
	tasks, err := database.GetTaskWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("task storage: %w", err)
	}
	encounters, err := database.GetEncounterWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("encounter storage: %w", err)
	}
	settings, _ := database.GetSettingsStore(ctx)
	return &stores{people: people, tasks: tasks, encounters: encounters, settings: settings}, nil
}
