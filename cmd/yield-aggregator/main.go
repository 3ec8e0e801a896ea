package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/yield-aggregator/internal/api"
	"github.com/Checker-Finance/yield-aggregator/internal/bancor"
	"github.com/Checker-Finance/yield-aggregator/internal/dydx"
	"github.com/Checker-Finance/yield-aggregator/internal/httpclient"
	"github.com/Checker-Finance/yield-aggregator/internal/ingest"
	"github.com/Checker-Finance/yield-aggregator/internal/jobs"
	"github.com/Checker-Finance/yield-aggregator/internal/publisher"
	"github.com/Checker-Finance/yield-aggregator/internal/rate"
	intsecrets "github.com/Checker-Finance/yield-aggregator/internal/secrets"
	"github.com/Checker-Finance/yield-aggregator/internal/snapshot"
	"github.com/Checker-Finance/yield-aggregator/internal/store"
	"github.com/Checker-Finance/yield-aggregator/internal/zapper"
	"github.com/Checker-Finance/yield-aggregator/pkg/config"
	"github.com/Checker-Finance/yield-aggregator/pkg/logger"
	pkgsecrets "github.com/Checker-Finance/yield-aggregator/pkg/secrets"
	"github.com/Checker-Finance/yield-aggregator/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [yield-aggregator]...")

	// --- Per-source rate limiters ---
	rateMgr, err := rate.NewManagerFromSettings(cfg.SourceRate, cfg.SourceRates)
	if err != nil {
		logg.Fatalw("invalid source rate", "error", err)
	}

	newExecutor := func(source string) *httpclient.Executor {
		lim := rateMgr.GetLimiter(source)
		logg.Infow("source rate", "source", lim.Name(), "ops_per_second", lim.Rate(), "interval", lim.Interval())
		return httpclient.New(
			logger.Named(source),
			lim,
			&http.Client{},
			source,
			httpclient.WithTimeout(cfg.RequestTimeout),
			httpclient.WithHeader("User-Agent", cfg.ServiceName),
		)
	}

	// --- Credentials ---
	var provider pkgsecrets.Provider
	if cfg.SecretsBackend == "aws" {
		awsProvider, err := pkgsecrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		provider = awsProvider
	}
	keyCache := pkgsecrets.NewCache[string](cfg.CacheTTL)
	go keyCache.StartCleaner(cfg.CleanupFreq, ctx.Done())

	keys := intsecrets.NewKeyResolver(
		logger.Named("secrets"),
		cfg.Env,
		map[string]string{zapper.Name: cfg.ZapperAPIKey},
		provider,
		keyCache,
	)

	// --- Sources, in declaration order ---
	sources := []ingest.Source{
		bancor.New(logger.Named(bancor.Name), newExecutor(bancor.Name), bancor.Config{
			BaseURL:         cfg.BancorBaseURL,
			MinLiquidityUSD: cfg.BancorMinLiquidityUSD,
		}),
		dydx.New(logger.Named(dydx.Name), newExecutor(dydx.Name), cfg.DYDXBaseURL),
		zapper.New(logger.Named(zapper.Name), newExecutor(zapper.Name), zapper.Config{
			BaseURL:         cfg.ZapperBaseURL,
			Keys:            keys,
			MinLiquidityUSD: cfg.ZapperMinLiquidityUSD,
		}),
	}

	agg := ingest.NewAggregator(
		logger.Named("ingest"),
		sources,
		ingest.NewFilter(cfg.MinAPY, cfg.DisallowedSymbols),
		cfg.CycleTimeout,
	)

	// --- Optional sinks ---
	var (
		sinks    []jobs.Sink
		checkers []api.HealthChecker
		opts     []jobs.Option
		averages *store.HistoryWriter
	)

	if cfg.RedisAddr != "" {
		cache, err := store.NewSnapshotCache(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.SnapshotTTL, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init snapshot cache", "error", err)
		}
		defer cache.Close() //nolint:errcheck
		sinks = append(sinks, cache)
		checkers = append(checkers, cache)
		opts = append(opts, jobs.WithWarmStart(cache))
	}

	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		history, err := store.NewHistoryWriter(ctx, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init history writer", "error", err)
		}
		defer history.Close() //nolint:errcheck
		sinks = append(sinks, history)
		checkers = append(checkers, history)
		averages = history
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(nc, cfg.NATSStream, cfg.SnapshotSubject, cfg.ServiceName, logger.Named("publisher"))
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	if cfg.RabbitMQURL != "" {
		notifier, err := publisher.NewAMQPNotifier(cfg.RabbitMQURL, cfg.RabbitMQQueue, logger.Named("publisher"))
		if err != nil {
			logg.Fatalw("failed to init RabbitMQ notifier", "error", err)
		}
		defer notifier.Close() //nolint:errcheck
		sinks = append(sinks, notifier)
	}

	// --- Refresh loop: first cycle completes before the API serves ---
	snapshots := snapshot.NewPublisher()
	refresher := jobs.NewRefresher(
		logger.Named("refresher"),
		agg,
		snapshots,
		cfg.RefreshInterval,
		append(opts, jobs.WithSinks(sinks...))...,
	)
	if err := refresher.Start(ctx); err != nil {
		logg.Warnw("initial refresh failed; serving cached or empty snapshot", "error", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPReadTimeout,
		WriteTimeout:          cfg.HTTPWriteTimeout,
		IdleTimeout:           cfg.HTTPIdleTimeout,
		DisableStartupMessage: true,
	})
	handler := api.NewHandler(logger.Named("api"), snapshots)
	if averages != nil {
		handler.Averages = averages
	}
	api.RegisterRoutes(app, handler, checkers...)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[yield-aggregator] running",
		"sources", len(sources),
		"sinks", len(sinks),
		"refresh_interval", cfg.RefreshInterval)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [yield-aggregator]...")

	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}
