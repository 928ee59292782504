// Package app builds the dependency graph shared by cmd/server and cmd/mcp:
// store, cache, embedding provider, job client, memory service, graph
// traverser, and lifecycle manager. Both entry points wire the same
// components and differ only in which front end they expose.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/memsvc/memory/internal/cache"
	"github.com/memsvc/memory/internal/config"
	"github.com/memsvc/memory/internal/embedding"
	"github.com/memsvc/memory/internal/graph"
	"github.com/memsvc/memory/internal/jobs"
	"github.com/memsvc/memory/internal/lifecycle"
	"github.com/memsvc/memory/internal/memory"
	"github.com/memsvc/memory/internal/store"
	"github.com/memsvc/memory/internal/validate"
)

// App holds every wired component a front end needs. Fields are exported so
// cmd/server and cmd/mcp can reach into whichever subset they run.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *store.DB
	Cache    *cache.Tiered
	Embedder *embedding.Provider
	Jobs     *jobs.Client

	Service   *memory.Service
	Traverser *graph.Traverser
	Lifecycle *lifecycle.Manager

	Limits validate.Limits

	redisOpt asynq.RedisConnOpt
}

// New loads config and wires every component. ctx bounds the initial
// database connect and migration run, not the process lifetime.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	db, err := store.Open(ctx, store.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var remote *cache.Remote
	if cfg.RedisURL != "" {
		remote, err = cache.NewRemote(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
	}
	local, err := cache.NewLocal()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	tiered := cache.NewTiered(remote, local, logger)

	backend := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	embedder := embedding.NewProvider(backend, tiered, cfg.EmbeddingDim)

	redisOpt, err := redisConnOpt(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	jobsClient := jobs.NewClient(redisOpt)

	dedup := memory.NewDeduplicator(db.Memories)
	svc := memory.NewService(
		db.Memories, db.Relations, tiered, embedder, dedup, jobsClient,
		cfg.EnableAsyncProcessing, cfg.DefaultCacheTTL, logger,
	)

	traverser := graph.NewTraverser(db.Memories, db.Relations)

	lcCfg := lifecycle.Config{
		BaseDecayRate:      cfg.BaseDecayRate,
		AccessBoost:        cfg.AccessBoost,
		RelationshipBoost:  cfg.RelationshipBoost,
		PreservationTags:   cfg.PreservationTags,
		RetentionDays:      cfg.RetentionDays,
		RetentionBatchSize: 100,
	}
	lc := lifecycle.NewManager(db.Memories, db.Relations, lcCfg, logger)

	limits := validate.Limits{
		MaxContentBytes:   cfg.MaxContentSize,
		MaxTags:           cfg.MaxTags,
		MaxTagLength:      cfg.MaxTagLength,
		MaxUserContextLen: cfg.MaxUserContextLength,
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Cache:     tiered,
		Embedder:  embedder,
		Jobs:      jobsClient,
		Service:   svc,
		Traverser: traverser,
		Lifecycle: lc,
		Limits:    limits,
		redisOpt:  redisOpt,
	}, nil
}

// RedisConnOpt exposes the parsed asynq connection options for the worker
// server and periodic scheduler, both of which live only in cmd/server.
func (a *App) RedisConnOpt() asynq.RedisConnOpt { return a.redisOpt }

// Close releases the store pool and job client connection.
func (a *App) Close() {
	if err := a.Jobs.Close(); err != nil {
		a.Logger.Warn("close job client", "error", err)
	}
	a.DB.Close()
}

func redisConnOpt(url string) (asynq.RedisConnOpt, error) {
	if url == "" {
		return asynq.RedisClientOpt{Addr: "localhost:6379"}, nil
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, err
	}
	return opt, nil
}

// ProbeLoop periodically re-checks the remote cache tier so a transient
// Redis outage doesn't permanently disable it for the process lifetime.
func (a *App) ProbeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Cache.Probe(ctx)
		}
	}
}
