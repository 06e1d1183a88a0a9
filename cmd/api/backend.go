package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/handlers"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/config"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/mongostore"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/repository"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/repository/migrations"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/service"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/pkg/database"
)

// backend is the set of stores served by one database driver.
type backend struct {
	feedback service.FeedbackStore
	searcher service.NeighborSearcher
	episodes service.EpisodeStore
	settings service.UserSettingsStore
	pinger   handlers.Pinger
	close    func(ctx context.Context)
}

// openBackend connects to the store selected by DATABASE_DRIVER.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.DatabaseDriver {
	case config.DatabaseDriverMongoDB:
		return openMongo(ctx, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*backend, error) {
	// Migrations create the vector extension, which must exist before pgvector types are registered.
	if cfg.DatabaseMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL, migrations.FS, slog.Default()); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithVectorTypes(),
		database.WithMaxConns(int32(min(cfg.DatabaseMaxConns, 1<<15))), //nolint:gosec // bounded above
	)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	events := repository.NewFeedbackEventsRepository(pool)

	return &backend{
		feedback: events,
		searcher: events,
		episodes: repository.NewEpisodesRepository(pool),
		settings: repository.NewUserSettingsRepository(pool),
		pinger:   events,
		close:    func(context.Context) { pool.Close() },
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*backend, error) {
	store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		slog.WarnContext(ctx, "could not ensure mongodb indexes", "error", err)
	}

	slog.InfoContext(ctx, "connected to MongoDB", "database", cfg.MongoDatabase)

	return &backend{
		feedback: store,
		searcher: store,
		episodes: store,
		settings: store,
		pinger:   store,
		close: func(ctx context.Context) {
			if err := store.Close(ctx); err != nil {
				slog.Error("close mongodb", "error", err)
			}
		},
	}, nil
}
