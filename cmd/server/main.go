package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bundlevault/bundlevault/internal/api"
	"github.com/bundlevault/bundlevault/internal/api/handlers"
	"github.com/bundlevault/bundlevault/internal/config"
	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/repositories"
	"github.com/bundlevault/bundlevault/internal/worker"
)

// @title BundleVault API
// @version 1.0
// @description Download fulfillment service: bundles stored files into gated, expiring downloads.
func main() {
	cfg := config.Envs

	db := repositories.ConnectDatabase()
	repo := repositories.NewDownloadRepository(db)
	store := repositories.NewR2Store(cfg.R2)
	sink := events.LogSink{}

	builder := worker.NewBuilder(repo, store, sink, cfg.Build.ChunkSize)
	dispatcher := worker.NewDispatcher(builder, cfg.Build.MaxConcurrentBuilds)
	sweeper := worker.NewSweeper(repo, store, sink, cfg.Retention.SweepInterval)

	svc := download.NewService(repo, store, dispatcher, sink, cfg.Plan, cfg.Build, cfg.Retention, cfg.PresignTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go dispatcher.Run(ctx)
	go sweeper.Run(ctx)

	h := handlers.New(svc, store, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.SetupRouter(h),
		// Timeouts prevent resource exhaustion from slow clients. The
		// streaming delivery path holds the connection for the whole
		// transfer, so the write timeout has to be generous.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting BundleVault server on port: %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on port %s: %v", cfg.Port, err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
