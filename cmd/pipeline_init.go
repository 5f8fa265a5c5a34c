package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/db"
	"github.com/sells-group/odflow/internal/export"
	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/matrixcache"
	"github.com/sells-group/odflow/internal/metrics"
	"github.com/sells-group/odflow/internal/pipeline"
	"github.com/sells-group/odflow/internal/quota"
	"github.com/sells-group/odflow/internal/store"
	"github.com/sells-group/odflow/internal/traveltime"
	"github.com/sells-group/odflow/pkg/ors"
)

// pipelineEnv holds the store, clients and pipeline needed by the run
// and traveltime commands.
type pipelineEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Loader    *pipeline.Loader
	Builder   *traveltime.Builder
	Scheduler *quota.Scheduler
	Metrics   *metrics.Metrics // nil unless metrics.enabled
	Redis     *redis.Client    // nil unless cache.enabled
	PostGIS   *pgxpool.Pool    // nil unless postgis.enabled
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Redis != nil {
		_ = pe.Redis.Close()
	}
	if pe.PostGIS != nil {
		pe.PostGIS.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initResolver builds the input resolver from the fetch settings.
func initResolver() *fetcher.Resolver {
	return &fetcher.Resolver{
		CacheDir: cfg.Fetch.CacheDir,
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout,
			RateLimit: cfg.Fetch.RateLimit,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: cfg.Fetch.Timeout}),
	}
}

// initPipeline sets up the store, the matrix client, the optional cache,
// metrics and PostGIS export, and builds the Pipeline. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &pipelineEnv{}
	var err error
	if mode == "run" {
		if env.Store, err = openStore(ctx); err != nil {
			return nil, err
		}
	}

	var schedOpts []quota.Option
	var builderOpts []traveltime.Option
	if cfg.Metrics.Enabled {
		env.Metrics = metrics.New()
		schedOpts = append(schedOpts, env.Metrics.PauseHook())
		builderOpts = append(builderOpts, traveltime.WithObserver(env.Metrics.ObserveMatrixCall))
	}

	if cfg.Cache.Enabled {
		cache, client, cacheErr := matrixcache.Dial(ctx, matrixcache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		if cacheErr != nil {
			// The cache only saves quota; a run without it is still correct.
			zap.L().Warn("matrix cache unavailable, continuing without it", zap.Error(cacheErr))
		} else {
			env.Redis = client
			builderOpts = append(builderOpts, traveltime.WithCache(cache))
			zap.L().Info("matrix cache enabled", zap.String("addr", cfg.Cache.Addr))
		}
	}

	client := ors.NewClient(cfg.ORS.Key,
		ors.WithBaseURL(cfg.ORS.BaseURL),
		ors.WithTimeout(cfg.ORS.Timeout),
		ors.WithRateLimit(cfg.ORS.RateLimit),
	)
	env.Scheduler = quota.NewScheduler(cfg.TravelTime.QuotaBatches, cfg.TravelTime.Cooldown, schedOpts...)
	builderOpts = append(builderOpts, traveltime.WithBatchSize(cfg.TravelTime.BatchSize))
	env.Builder = traveltime.NewBuilder(client, env.Scheduler, builderOpts...)
	env.Loader = pipeline.NewLoader(cfg, initResolver())

	if mode != "run" {
		return env, nil
	}

	var opts []pipeline.Option
	if env.Metrics != nil {
		opts = append(opts, pipeline.WithMetrics(env.Metrics))
	}
	if cfg.PostGIS.Enabled {
		pg, pgErr := initPostGIS(ctx)
		if pgErr != nil {
			env.Close()
			return nil, pgErr
		}
		env.PostGIS = pg
		opts = append(opts, pipeline.WithPostGIS(export.NewPostGIS(pg, cfg.PostGIS.Schema, cfg.PostGIS.Upsert)))
	}

	env.Pipeline = pipeline.New(cfg, env.Store, env.Loader, env.Builder, env.Scheduler, opts...)
	return env, nil
}

// initPostGIS connects to the export database and creates the export
// tables.
func initPostGIS(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "connect postgis")
	}
	if err := export.NewPostGIS(pool, cfg.PostGIS.Schema, cfg.PostGIS.Upsert).Migrate(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate postgis")
	}
	return pool, nil
}
