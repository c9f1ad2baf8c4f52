package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/nodewatch-systems/nodewatch/internal/config"
	"github.com/nodewatch-systems/nodewatch/internal/handlers"
	"github.com/nodewatch-systems/nodewatch/internal/ingest"
	"github.com/nodewatch-systems/nodewatch/internal/ingeststats"
	"github.com/nodewatch-systems/nodewatch/internal/logging"
	"github.com/nodewatch-systems/nodewatch/internal/messaging"
	"github.com/nodewatch-systems/nodewatch/internal/normalizer"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
	"github.com/nodewatch-systems/nodewatch/internal/server"
	"github.com/nodewatch-systems/nodewatch/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("nodewatch"))
	logging.SetDefault(logger)

	slog.Info("Starting nodewatch service",
		slog.Int("port", cfg.Server.Port),
		slog.String("ingest_mode", cfg.Ingest.Mode),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)

	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	if cfg.Database.URL == "" {
		slog.Error("database.url is required (NODEWATCH_DATABASE_URL)")
		os.Exit(1)
	}

	slog.Info("Running database migrations")
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.URL, cfg.Ingest.BatchSize)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer repo.Close()
	slog.Info("Connected to PostgreSQL")

	// Initialize NATS publisher (optional - service works without it)
	var publisher *messaging.Publisher
	if cfg.NATS.Enabled {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWaitDuration()

		publisher, err = messaging.NewPublisher(natsCfg)
		if err != nil {
			slog.Warn("Failed to connect to NATS (continuing without NATS)",
				slog.String("url", cfg.NATS.URL),
				slog.String("error", err.Error()))
			publisher = nil
		} else {
			slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
		}
	} else {
		slog.Info("NATS messaging disabled")
	}

	// Initialize Redis ingest-stats backend (optional as well)
	var istats *ingeststats.Client
	if cfg.Redis.Enabled {
		istats, err = ingeststats.NewClient(cfg.Redis.URL)
		if err != nil {
			slog.Warn("Failed to connect to Redis (continuing without ingest stats)",
				slog.String("url", cfg.Redis.URL),
				slog.String("error", err.Error()))
			istats = nil
		} else {
			slog.Info("Connected to Redis", slog.String("url", cfg.Redis.URL))
		}
	} else {
		slog.Info("Redis ingest stats disabled")
	}

	norm := normalizer.New(normalizer.ParseMode(cfg.Ingest.Mode))
	svc := ingest.NewService(repo, norm, istats, publisher, logger)
	h := handlers.New(svc, repo, stats.NewService(repo), istats, cfg.Ingest.MaxUploadBytes, logger)

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("nodewatch service listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	log.Println("shutdown signal received")

	if publisher != nil {
		publisher.Close()
	}
	if istats != nil {
		if err := istats.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
