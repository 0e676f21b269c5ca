package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wpfleet/wpfleet/internal/catalog"
	"github.com/wpfleet/wpfleet/internal/config"
	"github.com/wpfleet/wpfleet/internal/controller"
	"github.com/wpfleet/wpfleet/internal/credentials"
	"github.com/wpfleet/wpfleet/internal/gateway"
	"github.com/wpfleet/wpfleet/internal/logging"
	"github.com/wpfleet/wpfleet/internal/report"
	"github.com/wpfleet/wpfleet/internal/status"
	"github.com/wpfleet/wpfleet/internal/store"
	"github.com/wpfleet/wpfleet/internal/wpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dbStore store.Store
	if cfg.DBType == config.DBTypePostgres {
		dbStore, err = store.NewPostgresStore(ctx, cfg.DBConnectionString)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using PostgreSQL store")
	} else {
		dbPath := filepath.Join(cfg.DataDir, "wpfleet.db")
		dbStore, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Error("Failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite store", "path", dbPath)
	}
	defer dbStore.Close()

	credentialService, err := credentials.NewServiceFromEnv(filepath.Join(cfg.DataDir, "wpfleet-encryption.key"))
	if err != nil {
		logger.Error("Failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential encryption is enabled", "source", credentialService.KeySource())

	repo := store.NewSealedRepository(dbStore, credentialService, logger)
	gw := gateway.New(cfg.RequestTimeout, logger)
	client := wpapi.New(gw)
	events := controller.NewEventHub()

	registry := controller.NewRegistry(repo, status.NewResolver(client, logger), logger, controller.RegistryConfig{
		RefreshConcurrency: cfg.RefreshConcurrency,
		Events:             events,
	})
	registry.Load(ctx)
	defer registry.Close()

	coordinator := controller.NewCoordinator(registry, client, logger, controller.CoordinatorConfig{
		Concurrency: cfg.InstallConcurrency,
	})

	syncer := controller.NewAutoSyncer(registry, logger, cfg.AutoSync)
	syncer.Start(ctx)
	defer syncer.Wait()

	if cfg.ReportsEnabled {
		outbox := cfg.ReportOutbox
		if outbox == "" {
			outbox = filepath.Join(cfg.DataDir, "outbox")
		}
		reports := report.NewScheduler(registry, coordinator, report.NewFileOutbox(outbox), logger, report.Config{
			Schedule: cfg.ReportSchedule,
			Company:  cfg.ReportCompany,
		})
		if err := reports.Start(); err != nil {
			logger.Error("Failed to start report scheduler", "error", err)
			os.Exit(1)
		}
		defer reports.Stop()
	}

	handler := controller.NewHandler(registry, coordinator, catalog.New(gw, cfg.CatalogURL), events, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/api/v1", handler.Routes())

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Info("Starting wpfleet", "addr", cfg.ListenAddr, "sites", len(registry.List()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, server, cancel)
}

func waitForShutdown(logger *slog.Logger, server *http.Server, stop context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		return
	}
	logger.Info("wpfleet stopped")
}
