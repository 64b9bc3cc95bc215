package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	"github.com/yanqian/mealplanner/internal/infra/config"
	"github.com/yanqian/mealplanner/internal/infra/mealapi"
	"github.com/yanqian/mealplanner/internal/infra/planarchive"
	"github.com/yanqian/mealplanner/internal/infra/plancache"
	"github.com/yanqian/mealplanner/internal/infra/tokenstore"
	httpiface "github.com/yanqian/mealplanner/internal/interface/http"
	"github.com/yanqian/mealplanner/pkg/metrics"
	"github.com/yanqian/mealplanner/pkg/util"
)

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideClock() util.Clock {
	return util.RealClock()
}

func provideAPIClient(cfg *config.Config, logger *slog.Logger) *mealapi.Client {
	return mealapi.NewClient(mealapi.Options{
		BaseURL:    cfg.API.BaseURL,
		AuthScheme: cfg.API.AuthScheme,
		Timeout:    cfg.API.Timeout,
	}, logger)
}

func provideMealPlanConfig(cfg *config.Config) mealplan.Config {
	return mealplan.Config{
		PollInterval:  cfg.Generation.PollInterval,
		Timeout:       cfg.Generation.Timeout,
		PublicBaseURL: cfg.API.PublicBaseURL,
	}
}

// provideTokenStore selects the configured backend and falls back to the
// state file when it cannot be reached.
func provideTokenStore(cfg *config.Config, logger *slog.Logger) (session.TokenStore, func(), error) {
	filePath := strings.TrimSpace(cfg.Session.FilePath)
	if filePath == "" {
		filePath = tokenstore.DefaultPath()
	}
	var (
		store   session.TokenStore = tokenstore.NewFileStore(filePath)
		cleanup                    = func() {}
	)

	switch cfg.Session.Store {
	case config.StoreMemory:
		store = tokenstore.NewMemoryStore()
	case config.StoreValkey:
		client, err := newValkeyClient(cfg.Session.Valkey.Addr)
		if err != nil {
			logger.Error("valkey token store unavailable, using state file", "error", err, "path", filePath)
			break
		}
		logger.Info("valkey token store enabled", "addr", cfg.Session.Valkey.Addr)
		store = tokenstore.NewValkeyStore(client, cfg.Session.Valkey.Prefix)
		cleanup = client.Close
	case config.StorePostgres:
		pool, err := newPostgresPool(cfg.Session.Postgres)
		if err != nil {
			logger.Error("postgres token store unavailable, using state file", "error", err, "path", filePath)
			break
		}
		pgStore := tokenstore.NewPostgresStore(pool)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = pgStore.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to prepare client_state table, using state file", "error", err, "path", filePath)
			pool.Close()
			break
		}
		logger.Info("postgres token store enabled")
		store = pgStore
		cleanup = pool.Close
	default:
		logger.Info("file token store enabled", "path", filePath)
	}

	if key := strings.TrimSpace(cfg.Session.TokenKey); key != "" {
		sealed, err := tokenstore.NewSealedStore(store, key)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store = sealed
	}
	return store, cleanup, nil
}

func providePlanCache(cfg *config.Config, logger *slog.Logger) (mealplan.Cache, func()) {
	if cfg.Cache.Valkey.Enabled {
		client, err := newValkeyClient(cfg.Cache.Valkey.Addr)
		if err != nil {
			logger.Error("valkey plan cache unavailable, falling back to memory cache", "error", err)
		} else {
			logger.Info("valkey plan cache enabled", "addr", cfg.Cache.Valkey.Addr)
			return plancache.NewValkeyCache(client, cfg.Cache.Valkey.Prefix, cfg.Cache.TTL), client.Close
		}
	}
	return plancache.NewMemoryCache(cfg.Cache.TTL), func() {}
}

func providePlanArchive(cfg *config.Config, logger *slog.Logger) mealplan.Archiver {
	if !cfg.Archive.Enabled {
		return nil
	}
	archive, err := planarchive.NewR2Archive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Region, logger)
	if err != nil {
		logger.Error("plan archive unavailable, archiving disabled", "error", err)
		return nil
	}
	logger.Info("plan archive enabled", "bucket", cfg.Archive.Bucket)
	return archive
}

func provideEventHub(cfg *config.Config, logger *slog.Logger) *httpiface.EventHub {
	return httpiface.NewEventHub(cfg.HTTP.AllowedOrigins, logger)
}

func newValkeyClient(addr string) (valkey.Client, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return nil, err
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newPostgresPool(cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
