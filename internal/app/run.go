package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"api-gateway/internal/common/logging"
	"api-gateway/internal/config"
	"api-gateway/internal/server"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	runtime.GOMAXPROCS(runtime.NumCPU())

	// Initialize logging
	logging.InitGlobalLogger()
	defer logging.MustSync()

	logging.Info("Starting api gateway",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
	)

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	// Initialize application
	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	// Set up HTTP routes
	router := mux.NewRouter()
	app.SetupRoutes(router)

	srv := server.New(router, cfg.Port)
	errCh := srv.Start()

	logging.Info("Gateway listening",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "services", Value: len(cfg.Services)},
	)

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logging.Error("Server failed", err)
		return err
	case sig := <-quit:
		logging.Info("Shutting down", logging.Field{Key: "signal", Value: sig.String()})
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
