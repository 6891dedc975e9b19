package notificationsubscriber

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	notificationdb "wheres-my-laundry/internal/notificationsubscriber/db"
	"wheres-my-laundry/internal/notificationsubscriber/notifier"
	"wheres-my-laundry/internal/notificationsubscriber/subscriber"
	"wheres-my-laundry/pkg/config"
	"wheres-my-laundry/pkg/db"
	"wheres-my-laundry/pkg/logger"
)

func Main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	concurrency := flag.Int("concurrency", 4, "Notifications processed in parallel")
	flag.Parse()

	logger := logger.NewLogger("notification-subscriber")
	logger.Info("startup", "service_started", "Notification Subscriber starting")

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("startup", "config_load_failed", "Failed to load configuration", err)
		log.Fatal(err)
	}
	logger.SetLevel(cfg.LogLevel)

	pool, err := db.ConnectDB(&cfg.Database, logger)
	if err != nil {
		logger.Error("startup", "db_connect_failed", "Failed to connect to database", err)
		log.Fatal(err)
	}
	defer pool.Close()

	notifSubscriber := subscriber.NewNotificationSubscriber(cfg,
		notificationdb.NewNotificationDB(pool, logger),
		notifier.NewNotifier(logger),
		logger, *concurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := notifSubscriber.Start(ctx); err != nil {
			logger.Error("startup", "subscribe_start_failed", "Subscriber stopped with error", err)
			log.Fatal(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown", "graceful_shutdown", "Shutting down subscriber...")
	cancel()
	<-done
	notifSubscriber.Stop()

	logger.Info("shutdown", "service_stopped", "Subscriber exiting")
}
