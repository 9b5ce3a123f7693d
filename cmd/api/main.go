package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pharmacare-storefront/api/controllers"
	"github.com/angelmondragon/pharmacare-storefront/api/middleware"
	"github.com/angelmondragon/pharmacare-storefront/api/routes"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	"github.com/angelmondragon/pharmacare-storefront/internal/backend"
	"github.com/angelmondragon/pharmacare-storefront/internal/identity"
	"github.com/angelmondragon/pharmacare-storefront/pkg/cache"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/angelmondragon/pharmacare-storefront/pkg/metrics"
	"github.com/angelmondragon/pharmacare-storefront/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	localCache, cacheRedis, closeCache, err := openCache(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open local cache", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	accountMetrics := metrics.NewAccountMetrics(registry)

	backendClient, err := backend.Probe(ctx, backend.Params{
		Config:  cfg,
		Cache:   localCache,
		Logger:  logg,
		Metrics: accountMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to connect backend", err)
		closeQuietly(ctx, logg, closeCache)
		os.Exit(1)
	}

	accountsService, err := accounts.New(accounts.Params{
		Backend: backendClient,
		Cache:   localCache,
		Config:  cfg,
		Logger:  logg,
		Metrics: accountMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create accounts service", err)
		closeQuietly(ctx, logg, closeAll(backendClient, closeCache))
		os.Exit(1)
	}

	var (
		identityService identity.Service
		rateLimiter     middleware.RateLimiterStore
	)
	checks := []controllers.ReadinessCheck{{Name: "cache", Pinger: localCache}}
	if backendClient != nil {
		identityService = backendClient.Auth
		rateLimiter = backendClient.Redis()
		checks = append(checks, controllers.ReadinessCheck{Name: "backend", Pinger: backendClient})
	} else if cacheRedis != nil {
		rateLimiter = cacheRedis
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"mode":     string(accountsService.Mode()),
	})
	logg.Info(logCtx, "starting api server")

	streams := controllers.NewEventStreams()
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			accountsService,
			identityService,
			rateLimiter,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			streams,
			checks...,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(streams.Close)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	if err := closeAll(backendClient, closeCache)(); err != nil {
		logg.Error(logCtx, "error closing dependencies", err)
	}
	os.Exit(exitCode)
}

// openCache builds the local cache on the configured driver. The returned
// redis client is non-nil only for the redis driver.
func openCache(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*cache.Cache, *redis.Client, func() error, error) {
	switch cfg.Storage.Driver {
	case config.CacheDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := cache.NewRedisStore(client)
		if err != nil {
			return nil, nil, nil, multierr.Append(err, client.Close())
		}
		c, err := cache.New(store, cfg.Storage)
		if err != nil {
			return nil, nil, nil, multierr.Append(err, client.Close())
		}
		return c, client, client.Close, nil
	default:
		client, err := db.OpenSQLite(ctx, cfg.Storage.SQLitePath, logg)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := cache.NewSQLiteStore(client.DB())
		if err != nil {
			return nil, nil, nil, multierr.Append(err, client.Close())
		}
		c, err := cache.New(store, cfg.Storage)
		if err != nil {
			return nil, nil, nil, multierr.Append(err, client.Close())
		}
		return c, nil, client.Close, nil
	}
}

func closeAll(backendClient *backend.Client, closeCache func() error) func() error {
	return func() error {
		var err error
		if backendClient != nil {
			err = multierr.Append(err, backendClient.Close())
		}
		return multierr.Append(err, closeCache())
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing dependencies", err)
	}
}
