package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/config"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
	"github.com/score-tracker/internal/handler"
	"github.com/score-tracker/internal/kafka"
	"github.com/score-tracker/internal/memstore"
	"github.com/score-tracker/internal/postgres"
	"github.com/score-tracker/internal/redis"
	"github.com/score-tracker/internal/service"
	"github.com/score-tracker/internal/syncstore"
	"github.com/score-tracker/internal/websocket"
	"github.com/score-tracker/internal/worker"
)

// remoteStore is the repository behind the entity services
type remoteStore interface {
	service.PlayerRepository
	service.GameRepository
	service.ScoreRepository
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	// .env values feed ${VAR} expansion in the config file
	envErr := godotenv.Load(*envPath)

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envPath, "error", envErr)
	}
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authenticator, err := auth.NewAuthenticator(&cfg.Auth)
	if err != nil {
		logger.Error("failed to initialize authentication", "error", err)
		os.Exit(1)
	}

	var (
		repo     remoteStore
		changes  feed.Feed
		relay    *worker.Relay
		listener *postgres.Listener
	)

	switch cfg.Feed.Driver {
	case config.FeedDriverMemory:
		logger.Info("using in-memory store")
		broker := feed.NewBroker()
		repo = memstore.NewRepository(broker, logger)
		changes = broker

	default:
		// Initialize PostgreSQL
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		repo = postgresRepo
		listener = postgres.NewListener(postgresRepo.Pool(), logger)
		changes = listener

		if cfg.Feed.Driver == config.FeedDriverRedis {
			// Initialize Redis
			logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
			redisClient, err := redis.NewClient(ctx, &cfg.Redis)
			if err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}
			defer redisClient.Close()
			logger.Info("connected to Redis")

			redisFeed := redis.NewFeed(redisClient, cfg.Feed.ChannelPrefix, logger)
			changes = redisFeed

			if cfg.Feed.RelayEnabled {
				relay = worker.NewRelay(listener, redisFeed, cfg.Feed.RelayStatsInterval, logger)
				if err := relay.Start(ctx); err != nil {
					logger.Error("failed to start change relay", "error", err)
					os.Exit(1)
				}
			}
		}
	}

	// Initialize services
	store := syncstore.New(
		service.NewPlayerService(repo),
		service.NewGameService(repo),
		service.NewScoreService(repo),
		changes,
		logger,
	)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	store.SetBroadcaster(wsHub)
	logger.Info("WebSocket hub initialized")

	// Notifications lost while a LISTEN connection was down are recovered by
	// reloading the table. With the relay this also repairs the Redis side,
	// whose subscribers never saw those changes either.
	if listener != nil && (cfg.Feed.Driver != config.FeedDriverRedis || relay != nil) {
		listener.OnReconnect(func(table domain.Table) {
			if err := store.Resync(ctx, table); err != nil {
				logger.Error("failed to resync after reconnect", "table", table, "error", err)
			}
		})
	}

	// A partial load keeps the server up with whatever loaded
	if err := store.Initialize(ctx); err != nil {
		var loadErr *domain.LoadError
		if !errors.As(err, &loadErr) {
			logger.Error("failed to initialize store", "error", err)
			os.Exit(1)
		}
		logger.Warn("store initialized with errors", "error", err)
	}

	// Initialize Kafka consumer for score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, store, logger)
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

	httpHandler := handler.NewHandler(store, authenticator, wsHub, logger)

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
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "feed", cfg.Feed.Driver)
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

	// Release the change feed subscriptions
	if err := store.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}

	if relay != nil {
		if err := relay.Stop(); err != nil {
			logger.Error("failed to stop change relay", "error", err)
		}
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}
