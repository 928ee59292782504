package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memsvc/memory/internal/api"
	"github.com/memsvc/memory/internal/app"
	"github.com/memsvc/memory/internal/jobs"
	"github.com/memsvc/memory/internal/window"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %s\n", err)
		os.Exit(1)
	}
	defer a.Close()

	logger := a.Logger

	queueWeights, err := jobs.LoadQueueWeights(os.Getenv("JOB_QUEUE_CONFIG"))
	if err != nil {
		logger.Error("failed to load queue config", "error", err)
		os.Exit(1)
	}

	handlers := jobs.NewHandlers(a.Service, a.DB.Memories, a.Embedder, a.Lifecycle, a.Config.DefaultCacheTTL, logger)
	concurrency := a.Config.EmbeddingWorkers + a.Config.BatchWorkers + a.Config.ConsolidationWorkers + a.Config.ClusteringWorkers + a.Config.DecayWorkers
	workerServer := jobs.NewServer(a.RedisConnOpt(), concurrency, queueWeights, handlers, logger)

	decay := jobs.NewDecayController(a.Jobs, a.Config.EnableAsyncProcessing)
	periodic, err := jobs.NewPeriodicManager(a.RedisConnOpt(), a.DB.Memories, decay, 100, logger)
	if err != nil {
		logger.Error("failed to build decay schedule", "error", err)
		os.Exit(1)
	}

	rescore := window.NewManager(a.DB.Memories, logger)

	router := api.NewRouter(a.DB, a.Service, a.Cache, a.Jobs, os.Getenv("API_KEY"), logger)
	addr := fmt.Sprintf(":%d", a.Config.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go a.ProbeLoop(ctx, 30*time.Second)
	go rescore.RunRescoreLoop(ctx, 10*time.Minute)

	go func() {
		logger.Info("job worker starting")
		if err := workerServer.Run(ctx); err != nil {
			logger.Error("job worker error", "error", err)
		}
	}()

	go func() {
		if err := periodic.Start(); err != nil {
			logger.Error("decay schedule failed to start", "error", err)
		}
	}()

	go func() {
		logger.Info("memory server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	periodic.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
