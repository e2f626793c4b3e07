package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/handler"
	"github.com/leettogether/leetstreak/internal/kafka"
	"github.com/leettogether/leetstreak/internal/leetcode"
	"github.com/leettogether/leetstreak/internal/notify"
	"github.com/leettogether/leetstreak/internal/service"
	"github.com/leettogether/leetstreak/internal/store"
	"github.com/leettogether/leetstreak/internal/timepolicy"
	"github.com/leettogether/leetstreak/internal/websocket"
	"github.com/leettogether/leetstreak/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := timepolicy.New(cfg.Tracker.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Tracker.Timezone, "error", err)
		os.Exit(1)
	}

	// Initialize storage
	docs, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer docs.Close()
	repo := store.NewRepository(docs, logger)
	logger.Info("store ready", "backend", cfg.Store.Backend)

	// Notification path: sink behind the rate-limit gate
	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.Discord.Enabled {
		sink = notify.NewDiscordSink(&cfg.Discord, logger)
		logger.Info("posting to Discord", "api_base", cfg.Discord.APIBase)
	} else {
		logger.Warn("discord disabled, messages are only logged")
	}
	gate := notify.NewGate(sink, &cfg.Discord, logger)
	if err := gate.Start(ctx); err != nil {
		logger.Error("failed to start notification gate", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	notifier := notify.NewNotifier(gate, repo, cfg.Discord.AnnouncementChannel, logger, wsHub)

	var producer *kafka.Producer
	if cfg.Kafka.PublishAnnouncements {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without it", "error", err)
		} else {
			notifier.AddPublisher(kafka.NewEventPublisher(producer, cfg.Kafka.AnnouncementTopic))
			logger.Info("mirroring events to Kafka", "topic", cfg.Kafka.AnnouncementTopic)
		}
	}

	// Initialize services
	client := leetcode.NewClient(&cfg.LeetCode, logger)
	tracker := service.NewTracker(repo, client, notifier, policy, &cfg.Tracker, cfg.LeetCode.HistoryLimit, logger)

	// Scheduled jobs
	var dispatcher *worker.Dispatcher
	if cfg.Schedule.Enabled {
		dispatcher = worker.NewDispatcher(policy.Now, logger)
		if err := worker.Register(dispatcher, tracker, &cfg.Schedule, policy.Location()); err != nil {
			logger.Error("failed to register jobs", "error", err)
			os.Exit(1)
		}
		if err := dispatcher.Start(ctx); err != nil {
			logger.Error("failed to start dispatcher", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for registration events
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.RegistrationTopic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, tracker, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	var jobs handler.Jobs
	if dispatcher != nil {
		jobs = dispatcher
	}
	httpHandler := handler.NewHandler(tracker, jobs, wsHub, repo, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Let running jobs finish before the gate drains
	if dispatcher != nil {
		if err := dispatcher.Stop(); err != nil {
			logger.Error("failed to stop dispatcher", "error", err)
		}
	}

	if err := gate.Stop(); err != nil {
		logger.Error("failed to stop notification gate", "error", err)
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
