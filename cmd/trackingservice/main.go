package trackingservice

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wheres-my-laundry/cmd/trackingservice/server"
	"wheres-my-laundry/pkg/config"
	"wheres-my-laundry/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func Main() {
	port := flag.Int("port", 3002, "HTTP port for the API")
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	flag.Parse()

	logger := logger.NewLogger("tracking-service")
	logger.Info("startup", "service_started", "Tracking Service starting")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("startup", "config_load_failed", "Failed to load configuration", err)
		log.Fatal(err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(*port, cfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown", "graceful_shutdown", "Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown", "server_failed", "Tracking Service stopped with error", err)
		log.Fatal(err)
	}

	logger.Info("shutdown", "service_stopped", "Server exiting")
}
