package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/api"
	"github.com/siftwatch/sift-be/internal/config"
	"github.com/siftwatch/sift-be/internal/database"
	"github.com/siftwatch/sift-be/internal/logger"
	"github.com/siftwatch/sift-be/internal/notify"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
	"github.com/siftwatch/sift-be/internal/websocket"
	"github.com/siftwatch/sift-be/internal/worker"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up the rule configuration store
	ruleStore := rules.NewStore(cfg.RulesPath, cfg.DefaultScoreThreshold)
	if _, err := ruleStore.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load rules document")
	}
	if err := ruleStore.Watch(); err != nil {
		log.Warn().Err(err).Msg("Rules hot-reload disabled")
	}
	defer ruleStore.Close()

	// Set up the notifier
	var notifier notify.Notifier
	if cfg.SMTPAddr != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		log.Warn().Msg("SMTP_ADDR not set, alerts will only be logged")
		notifier = notify.NoopNotifier{}
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db, hub)
	actionService := services.NewActionService(db, hub)
	deliveryService := services.NewDeliveryService(db)

	// Set up and run the background loops under a single supervisor
	dispatcher := worker.NewDispatcher(notifier, actionService, deliveryService, cfg.AlertRecipient)
	supervisor := worker.NewSupervisor(
		worker.NewWorker(eventService, ruleStore, dispatcher, cfg.PollInterval, cfg.BatchSize),
		worker.NewRetryScheduler(deliveryService, notifier, cfg.RetryInterval, cfg.MaxDeliveryAttempts),
		worker.NewDigestScheduler(actionService, notifier, ruleStore, cfg.AlertRecipient, cfg.DigestCron),
	)
	if err := supervisor.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background loops")
	}

	// Set up router
	router := api.NewRouter(hub, eventService, actionService, deliveryService, ruleStore)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	supervisor.Stop() // Let in-flight drain cycles finish

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
