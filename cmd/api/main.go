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

	"github.com/timmy/flatsync/internal/api"
	"github.com/timmy/flatsync/internal/config"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/repository"
	"github.com/timmy/flatsync/internal/service"
	"github.com/timmy/flatsync/internal/source"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH selects the config file in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	log := appLogger.WithField(logger.FieldComponent, "api")

	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	tasks := repository.NewTaskRepository(db, &repository.TaskRepositoryConfig{
		MaxRetries:    cfg.Worker.MaxRetries,
		ClaimAttempts: cfg.Worker.ClaimAttempts,
	})

	// Historical discovery needs a source listing; other modes work without one
	var lister source.Lister
	if err := cfg.ValidateSource(); err != nil {
		log.WithError(err).Warn("Source not configured, historical discovery disabled")
	} else if src, err := source.New(&cfg.Source); err != nil {
		log.WithError(err).Warn("Failed to initialize source, historical discovery disabled")
	} else {
		lister = src
	}

	resolver, err := service.NewCandidateResolver(lister, cfg.Source.Prefix, cfg.Discoverer.Timezone)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize candidate resolver")
	}
	runs := repository.NewRunRepository(db)
	discoverer := service.NewDiscovererService(tasks, resolver, log).WithRunRecorder(runs)

	router := api.SetupRouter(&api.RouterConfig{
		Tasks:       tasks,
		Discoverer:  discoverer,
		Runs:        runs,
		Ping:        func(ctx context.Context) error { return repository.Ping(ctx, db) },
		Logger:      log,
		Mode:        cfg.Server.Mode,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("Server exited")
}
