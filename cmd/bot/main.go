package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go-telegram-relay-bot/internal/bot"
	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/database"
	"go-telegram-relay-bot/internal/fetcher"
	"go-telegram-relay-bot/internal/fraud"
	"go-telegram-relay-bot/internal/kvstore"
	"go-telegram-relay-bot/internal/logger"
	"go-telegram-relay-bot/internal/notify"
	"go-telegram-relay-bot/internal/ratelimit"
	"go-telegram-relay-bot/internal/registry"
	"go-telegram-relay-bot/internal/relaymap"
	"go-telegram-relay-bot/internal/service"
	"go-telegram-relay-bot/internal/service/relay"
	"go-telegram-relay-bot/internal/telegram"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting telegram relay bot")

	store, redisClient, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}

	client, err := telegram.NewClient(cfg, log)
	if err != nil {
		log.Fatal("Failed to create bot client", zap.Error(err))
	}

	alerter := service.NewOperatorAlerter(client, cfg.Bot.OperatorID, log)

	textFetcher, err := fetcher.New(cfg, alerter, log)
	if err != nil {
		log.Fatal("Failed to create fetcher", zap.Error(err))
	}

	reg := registry.New(store, cfg.Limits.ListPage, cfg.Limits.ListMax, cfg.Limits.HistoryMax, log)
	mapper := relaymap.New(store)
	fraudChecker := fraud.NewChecker(textFetcher, cfg.Fraud.DenylistURL, alerter, log)
	throttler := notify.NewThrottler(store, cfg.Notify.Interval())
	rateLimiter := ratelimit.NewRateLimiter(redisClient, cfg, log)

	relayService := relay.NewService(
		client,
		reg,
		mapper,
		fraudChecker,
		throttler,
		rateLimiter,
		textFetcher,
		alerter,
		cfg,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Bot.Mode == config.ModeWebhook {
		retryHandler := telegram.NewRetryHandler(3, 5*time.Second, log)
		if err := telegram.RegisterWebhook(ctx, client.Bot(), cfg.Webhook, retryHandler, log); err != nil {
			log.Fatal("Failed to register webhook", zap.Error(err))
		}
	}

	relayBot := bot.New(client, relayService, cfg, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relayBot.Start(ctx); err != nil && err != context.Canceled {
			log.Error("Relay bot error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("Relay bot is running. Press Ctrl+C to stop.")
	<-sigChan

	log.Info("Shutting down...")
	cancel()
	relayBot.Stop()
	wg.Wait()

	if cfg.Bot.Mode == config.ModeWebhook {
		if err := telegram.UnregisterWebhook(client.Bot(), log); err != nil {
			log.Warn("Failed to unregister webhook", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("Failed to close redis client", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}

// openStore builds the key-value store behind all relay state. The redis
// client is returned separately because the rate limiter wants the raw
// client; it is nil for the other backends, which the limiter handles by
// falling back to its in-process window.
func openStore(cfg *config.Config, log *zap.Logger) (kvstore.Store, *redis.Client, error) {
	switch cfg.Store.Backend {
	case "redis":
		// Startup is outside the no-retry message path, so a slow redis
		// gets a few chances before the process gives up.
		client, err := database.RetryRedisConnection(cfg.Store.Redis, 3, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Redis store connected", zap.String("address", cfg.Store.Redis.Address))
		return kvstore.NewRedisStore(client), client, nil

	case "database":
		db, err := database.Connect(cfg.Store.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Database store connected and migrated",
			zap.String("type", cfg.Store.Database.Type))
		return kvstore.NewGormStore(db), nil, nil

	case "memory":
		log.Warn("Using in-memory store; all relay state is lost on restart")
		return kvstore.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
