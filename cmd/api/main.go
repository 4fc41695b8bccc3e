package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cablepark/internal/api"
	"cablepark/internal/config"
	"cablepark/internal/database"
	"cablepark/internal/domain"
	"cablepark/internal/events"
	"cablepark/internal/export"
	"cablepark/internal/logging"
	"cablepark/internal/metrics"
	"cablepark/internal/repository"
	"cablepark/internal/service"
	"cablepark/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := base.With().Str("component", "api-main").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	cache := initGridCache(cfg, redisClient, &logger)

	facility, err := service.NewFacility(cfg.Facility, db)
	if err != nil {
		return fmt.Errorf("init facility: %w", err)
	}

	bus := events.NewEventBus()
	events.LogSubscriber(bus, logging.Component(base, "events"))

	schedule := service.NewScheduleService(db, db, facility, cache, logging.Component(base, "schedule"))
	exporter := export.NewExporter(schedule, cfg.Exports.Path, logging.Component(base, "export"))
	services := api.Services{
		Zone:     facility.Zone,
		Bookings: service.NewBookingService(db, facility, bus, logging.Component(base, "bookings")),
		Schedule: schedule,
		Admin:    service.NewAdminService(db, db, facility, bus, logging.Component(base, "admin")),
		Exports:  exporter,
		Ready:    db.PingContext,
	}

	if cfg.Exports.RefreshOnChange {
		exportWorker := worker.NewExportWorker(exporter, facility.Zone, redisClient,
			worker.RetryPolicy{MaxRetries: cfg.Exports.MaxRetries}, logging.Component(base, "export-worker"))
		exportWorker.Subscribe(bus)
		go exportWorker.Start(ctx)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, base).Start(ctx)
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, base)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go watchDatabase(ctx, db, grpcServer, &logger)
	}

	httpServer := api.NewHTTPServer(cfg.API, services, base)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

// initDatabase opens the schedule and stores the configured operating hours
// the first time it starts against an empty database.
func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	_, err = db.OperatingHours(ctx)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrHoursNotConfigured) && len(cfg.OperatingHours) > 0:
		hours, err := cfg.Hours()
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := db.ReplaceOperatingHours(ctx, hours); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed operating hours: %w", err)
		}
		logger.Info().Msg("operating hours seeded from config")
	case errors.Is(err, database.ErrHoursNotConfigured):
		logger.Warn().Msg("no operating hours configured; the grid stays empty until PUT /api/v1/admin/hours")
	default:
		db.Close()
		return nil, err
	}
	return db, nil
}

// initRedis connects when an address is configured. An unreachable server
// is logged and treated as absent.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initGridCache returns nil when caching is off. The Redis backend falls
// back to the in-process cache when no client is available.
func initGridCache(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.GridCache {
	if !cfg.Cache.Enabled {
		return nil
	}

	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	memory := repository.NewMemoryGridCache(ttl)
	if cfg.Cache.Backend != "redis" || client == nil {
		logger.Info().Dur("ttl", ttl).Msg("in-memory grid cache enabled")
		return memory
	}

	primary := repository.NewRedisGridCache(client, ttl)
	return repository.NewFailoverGridCache(primary, memory, logger)
}

// watchDatabase mirrors database reachability into the gRPC health status.
func watchDatabase(ctx context.Context, db *database.DB, grpcServer *api.GRPCServer, logger *zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := db.PingContext(pingCtx)
			cancel()
			if ok := err == nil; ok != serving {
				serving = ok
				grpcServer.SetServing(ok)
				logger.Warn().Err(err).Bool("serving", ok).Msg("schedule health changed")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
