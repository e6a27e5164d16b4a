package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/application/service"
	"github.com/damon-houk/exchange-rate-grabber/internal/config"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/api"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/cache"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/db"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/grabber"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/handler"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/metrics"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/middleware"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/notifier"
	"github.com/gorilla/mux"
)

func main() {
	configPath := os.Getenv("GRABBER_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewJSONLogger(os.Stdout, level)
	logger.SetDefaultLogger(log)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", map[string]interface{}{"error": err})
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting exchange rate grabber", map[string]interface{}{
		"port":      cfg.Server.Port,
		"storage":   cfg.Storage.Path,
		"in_memory": cfg.Storage.InMemory,
	})

	// Setup BadgerDB
	dbPath := cfg.Storage.Path
	if cfg.Storage.InMemory {
		dbPath = ""
	} else if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	badgerDB, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing BadgerDB", map[string]interface{}{"error": err})
		}
	}()

	repo := db.NewBadgerRateRepository(badgerDB)
	fetcher := api.NewHTTPFetcher(cfg.Grabber.UserAgent, log)

	factory := func(spec entity.GrabberSpec) (entity.Grabber, error) {
		return grabber.New(spec, fetcher, log)
	}

	var sources []entity.GrabberSpec
	for _, source := range grabber.Sources() {
		if !cfg.SourceEnabled(source) {
			continue
		}
		sc := cfg.Sources[source]
		sources = append(sources, entity.GrabberSpec{
			Source:                   source,
			BaseCurrencyCodes:        sc.BaseCurrencyCodes,
			DestinationCurrencyCodes: sc.DestinationCurrencyCodes,
		})
	}

	// Observers
	m := metrics.NewMetrics()
	hub := notifier.NewHub(log)
	go hub.Run(ctx)

	rateService := service.NewRateService(factory, sources,
		cache.NewExchangeRateCache(cfg.Grabber.StaleAfter), repo, log)
	rateService.Attach(service.NewLoggingObserver(log))
	rateService.Attach(service.NewHistoryRecorder(repo))
	rateService.Attach(m)
	rateService.Attach(hub)
	rateService.SetGrabRecorder(m)

	restored, err := rateService.Restore(ctx)
	if err != nil {
		return err
	}
	log.Info("Tracked rates restored", map[string]interface{}{
		"count":   restored,
		"sources": len(sources),
	})

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(m.Middleware)

	handler.NewRateHandler(rateService, log).RegisterRoutes(router)
	router.Handle("/ws", hub).Methods("GET")
	router.Handle("/metrics", m.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info("Server stopped", nil)
	return nil
}
