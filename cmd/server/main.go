package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/portfolio-ledger/internal/api"
	"github.com/trogers1052/portfolio-ledger/internal/config"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/kafka"
	"github.com/trogers1052/portfolio-ledger/internal/logging"
	"github.com/trogers1052/portfolio-ledger/internal/portfolio"
	"github.com/trogers1052/portfolio-ledger/internal/quotes"
	"github.com/trogers1052/portfolio-ledger/internal/refresh"
	"github.com/trogers1052/portfolio-ledger/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("failed to init logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("service stopped with error")
	}
	logger.Info("service stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
			return err
		}
		logger.WithField("path", cfg.Database.MigrationsPath).Info("database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, caches will bypass until it recovers")
		}
	}

	providers := []quotes.Provider{quotes.NewYahooProvider(cfg.Quotes.YahooBaseURL, cfg.Quotes.Timeout)}
	if cfg.Quotes.AlphaVantageAPIKey != "" {
		av := quotes.NewAlphaVantageProvider(cfg.Quotes.AlphaVantageBaseURL, cfg.Quotes.AlphaVantageAPIKey, cfg.Quotes.Timeout)
		providers = append(providers, quotes.WithRateLimit(av, cfg.Quotes.AlphaVantagePerMin))
	}
	fetcher := quotes.NewFetcher(quotes.FetcherConfig{
		MaxTries:    cfg.Quotes.MaxRetries,
		Concurrency: cfg.Quotes.Concurrency,
	}, logger, providers...)

	var (
		quoteSource quotes.Source       = fetcher
		warmer      refresh.QuoteWarmer = fetcher
		local       store.Local
	)
	if redisClient != nil {
		cache := quotes.NewRedisCache(redisClient, fetcher, cfg.Redis.QuoteTTL, logger)
		quoteSource, warmer = cache, cache
		local = store.NewRedisLocal(redisClient, cfg.Redis.HoldingsTTL)
	}
	holdings := store.NewTiered(db, local, cfg.Portfolio.FallbackPolicy, logger)

	var events portfolio.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		events = producer
	}

	svc := portfolio.New(db, holdings, quoteSource, events, portfolio.Config{
		SymbolSuffix: cfg.Portfolio.SymbolSuffix,
	}, logger)

	handler := api.NewHandler(svc, db, cfg.Portfolio.Currency, logger)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handler, api.NewAuthenticator(cfg.Auth.JWTSecret), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := refresh.NewScheduler(db, warmer, db, refresh.Config{
		Interval:  cfg.Quotes.RefreshInterval,
		Retention: cfg.Quotes.HistoryRetention,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := scheduler.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, cfg.Kafka.GroupID, cfg.Kafka.DefaultOwner, svc, logger)
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}
	return nil
}
