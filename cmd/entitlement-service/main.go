package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/entitlement-service/internal/app"
	"github.com/Dhoini/entitlement-service/internal/config"
	"github.com/Dhoini/entitlement-service/internal/http/routes"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	bootLog := initLogger()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		bootLog.Fatalw("Failed to load configuration", "error", err)
	}

	log := logger.New(logger.ParseLevel(cfg.App.LogLevel))
	defer log.Sync() //nolint:errcheck
	log.Infow("Configuration loaded", "env", cfg.App.Env, "storage", cfg.Storage.Driver, "kafka", cfg.Kafka.Driver)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.Build(startCtx, cfg, log)
	startCancel()
	if err != nil {
		log.Fatalw("Failed to build application", "error", err)
	}

	router := gin.New()
	routes.SetupRoutes(router, application, log)

	// a manual sync may hold its request for up to sync.timeout
	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Sync.Timeout + 10*time.Second,
	}

	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	if err := application.Close(); err != nil {
		log.Errorw("Failed to release resources", "error", err)
	}

	log.Infow("Cleanup finished")
}

// initLogger builds the logger used until the configuration is read
func initLogger() *logger.Logger {
	logLevel := logger.INFO
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = logger.DEBUG
	}
	return logger.New(logLevel)
}
