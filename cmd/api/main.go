package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"concierge/api/internal/app"
	"concierge/api/internal/assistant"
	"concierge/api/internal/config"
	"concierge/api/internal/export"
	"concierge/api/internal/localcache"
	"concierge/api/internal/revision"
	"concierge/api/internal/search"
	"concierge/api/internal/shardsync"
	"concierge/api/internal/snapshot"
	"concierge/api/internal/store"
	"concierge/api/internal/summarycache"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LocalCachePath), 0o755); err != nil {
		log.Fatalf("failed to create cache dir: %v", err)
	}

	remote := store.NewPostgresStore(db)
	cache, err := localcache.Open(cfg.LocalCachePath)
	if err != nil {
		log.Fatalf("local cache open failed: %v", err)
	}
	defer cache.Close()
	gateway := shardsync.New(remote, cache)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	deps := app.Deps{
		Gateway:   gateway,
		Search:    searchService,
		Revisions: revision.New(cfg.ReposDir),
		Exports:   export.NewService(),
		Pinger:    remote,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		summaries, err := summarycache.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer summaries.Close()
		deps.Summaries = summaries
	} else {
		log.Printf("Redis not configured; hotel listing served uncached")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		snapshots, err := snapshot.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		deps.Snapshots = snapshots
	} else {
		log.Printf("Object storage not configured; snapshots disabled")
	}

	if strings.TrimSpace(cfg.AssistantURL) != "" {
		deps.Assistant = assistant.NewClient(cfg.AssistantURL, cfg.AssistantToken)
	} else {
		log.Printf("Assistant not configured")
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Concierge API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Flush pending edits before the process exits.
	service.Close(shutdownCtx)
}
