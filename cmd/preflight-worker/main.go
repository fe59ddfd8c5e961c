package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	apihandler "github.com/printforge/preflight/internal/api/handlers/preflight"
	"github.com/printforge/preflight/internal/api/router"
	"github.com/printforge/preflight/internal/api/server"
	"github.com/printforge/preflight/internal/config"
	"github.com/printforge/preflight/internal/convert"
	"github.com/printforge/preflight/internal/infra/kafka/consumer"
	"github.com/printforge/preflight/internal/infra/kafka/producer"
	itemmsg "github.com/printforge/preflight/internal/kafka/handlers/item"
	"github.com/printforge/preflight/internal/preflight"
	uploadrepo "github.com/printforge/preflight/internal/repository/upload"
	preflightsvc "github.com/printforge/preflight/internal/service/preflight"
	"github.com/printforge/preflight/internal/storage"
	"github.com/printforge/preflight/internal/storage/cdn"
	"github.com/printforge/preflight/internal/storage/local"
	"github.com/printforge/preflight/internal/storage/s3"
	"github.com/printforge/preflight/internal/thumbnail"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka, storage and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Storage backends; shops select one by provider name.
	backends := map[string]storage.Backend{}

	localStorage, err := local.NewStorage(cfg.Storage.Local.BaseDir)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize local storage")
	}
	backends["local"] = localStorage

	if cfg.Storage.S3.Endpoint != "" {
		s3Storage, err := s3.NewStorage(ctx, cfg.Storage.S3.Endpoint, cfg.Storage.S3.AccessKey,
			cfg.Storage.S3.SecretKey, cfg.Storage.S3.BucketName, cfg.Storage.S3.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to s3 storage")
		}
		backends["s3"] = s3Storage
	}

	if cfg.Storage.CDN.BaseURL != "" {
		backends["cdn"] = cdn.NewStorage(cfg.Storage.CDN.BaseURL, cfg.Storage.CDN.Token, cfg.Storage.CDN.Timeout)
	}

	// Initialize repository, producer, converter and service layer.
	repo := uploadrepo.NewRepository(db)
	p := producer.New(&cfg.Kafka, strategy)
	conv := convert.New(cfg.Worker.ConvertDPI, cfg.Worker.ConvertTimeout)
	thumb := thumbnail.New(cfg.Worker.ThumbSize)
	engine := preflight.NewEngine()

	service := preflightsvc.New(repo, p, conv, thumb, engine, backends, strategy, preflightsvc.Config{
		MaxAttempts:      cfg.Worker.MaxAttempts,
		MinDownloadBytes: cfg.Worker.MinDownloadBytes,
		DefaultPlan:      cfg.Preflight.DefaultPlan,
		Plans:            cfg.Preflight.Plans,
	})

	// Kafka message handler for preflight jobs.
	uploadedHandler := itemmsg.NewUploadedHandler(service)

	// HTTP handler for preflight routes.
	httpHandler := apihandler.NewHandler(service)

	// Kafka consumer with a bounded worker pool.
	c := consumer.New(&cfg.Kafka, strategy, uploadedHandler, cfg.Worker.Count, cfg.Worker.RatePerSecond)

	// Start Kafka consumer in a separate goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(httpHandler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
