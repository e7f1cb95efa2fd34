// cmd/server is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/cache"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/config"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/database"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/events"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/handler"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/logging"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "fitness-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// ── 1. Storage ───────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Cache and events ──────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis, false)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}
	classCache := cache.NewClassCache(rdb, cfg.Redis.TTL)

	publisher, err := openPublisher(cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close event publisher", zap.Error(err))
		}
	}()

	metrics.Register(prometheus.DefaultRegisterer)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	opts := []service.Option{
		service.WithCache(classCache),
		service.WithPublisher(publisher),
		service.WithLocation(cfg.Location()),
		service.WithValidator(service.NewValidator()),
	}
	catalog := service.NewCatalogService(store, log, opts...)
	booking := service.NewBookingService(store, log, opts...)

	if cfg.SeedOnStart {
		seeded, err := catalog.SeedSampleClasses(ctx)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("seeded sample classes", zap.Int("count", len(seeded)))
	}

	h := handler.NewBookingHandler(catalog, booking, log)
	router := handler.NewRouter(h, prometheus.DefaultGatherer, log)

	// ── 4. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store),
			zap.String("timezone", cfg.Timezone),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("schema applied")
	}
	return repository.NewPostgresStore(pool, cfg.Database.LockTimeout), pool.Close, nil
}

func openPublisher(cfg config.EventsConfig, log *zap.Logger) (events.Publisher, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		p, err := events.NewRabbitPublisher(cfg.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		log.Info("publishing booking events to rabbitmq")
		return p, nil
	case config.BrokerKafka:
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		log.Info("publishing booking events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
		return p, nil
	}
	return events.Noop{}, nil
}
