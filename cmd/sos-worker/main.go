// cmd/sos-worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sos-workers/internal/common/camunda"
	"sos-workers/internal/common/config"
	"sos-workers/internal/common/database"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/observability"
	"sos-workers/internal/common/push"
	"sos-workers/internal/dispatcher"
	"sos-workers/internal/events"
	"sos-workers/internal/profiles"
	"sos-workers/internal/resolver"
	transporthttp "sos-workers/internal/transport/http"
	transportnats "sos-workers/internal/transport/nats"
	ac "sos-workers/internal/workers/alerts/alert-created"
	au "sos-workers/internal/workers/alerts/alert-updated"
	"sos-workers/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff.
// Errors that camunda.IsRetryable rejects end the loop on the spot.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !camunda.IsRetryable(err) {
			return fmt.Errorf("%s failed: %w", operationName, err)
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sos worker...",
		zap.String("environment", cfg.App.Environment),
		zap.String("pushProvider", cfg.Push.Provider),
	)

	ctx := context.Background()

	obs := observability.New(cfg.App.Name, log)

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(ctx, cfg.Database.Postgres, 5*time.Second)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry (optional) ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	gateway, err := push.New(ctx, cfg.Push, log)
	if err != nil {
		zapLog.Fatal("push gateway init failed", zap.Error(err))
	}

	var cache *redis.Client
	if rdb != nil {
		cache = rdb.Client
	}
	store := profiles.NewPostgresStore(pg.DB, cache, cfg.Dispatch.ProfileCacheTTL, log)

	deps := dispatcher.Deps{
		Resolver:      resolver.New(store, cfg.Dispatch.LookupConcurrency, log),
		Gateway:       gateway,
		Observability: obs,
		Logger:        log,
	}
	if cfg.Dispatch.DedupEnabled {
		deps.Guard = dispatcher.NewRedisGuard(cache, cfg.Dispatch.DedupTTL)
	}
	d := dispatcher.New(dispatcher.Config{ReactionTimeout: cfg.Dispatch.ReactionTimeout}, deps)

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("trigger registry invalid", zap.Error(err))
	}
	codec, err := events.NewCodec(reg)
	if err != nil {
		zapLog.Fatal("trigger schemas invalid", zap.Error(err))
	}

	checks := map[string]transporthttp.ReadinessCheck{
		"postgres": pg.Ping,
	}
	if rdb != nil {
		checks["redis"] = rdb.Ping
	}

	// --- Zeebe workers ---
	var zeebeClient *camunda.Client
	var workers []*camunda.CamundaWorker
	if cfg.Camunda.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClient(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.Plaintext,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = zeebeClient.HealthCheck

		createdHandler := ac.NewHandler(&ac.Config{
			Timeout: config.GetDuration(config.GetWorkerConfig(cfg, ac.TaskType).Timeout),
		}, codec, d, log)
		workers = append(workers, camunda.StartWorker(zeebeClient.GetClient(), ac.TaskType, config.GetWorkerConfig(cfg, ac.TaskType), createdHandler, log))

		updatedHandler := au.NewHandler(&au.Config{
			Timeout: config.GetDuration(config.GetWorkerConfig(cfg, au.TaskType).Timeout),
		}, codec, d, log)
		workers = append(workers, camunda.StartWorker(zeebeClient.GetClient(), au.TaskType, config.GetWorkerConfig(cfg, au.TaskType), updatedHandler, log))
	}

	// --- NATS change feed ---
	var subscriber *transportnats.Subscriber
	if cfg.NATS.Enabled() {
		nc, err := transportnats.Connect(cfg.NATS, cfg.App.Name, log)
		if err != nil {
			zapLog.Fatal("nats connect failed", zap.Error(err))
		}
		defer nc.Close()

		subscriber = transportnats.NewSubscriber(nc, reg, codec, d, cfg.NATS, log)
		if err := subscriber.Start(); err != nil {
			zapLog.Fatal("nats subscribe failed", zap.Error(err))
		}
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats not connected")
			}
			return nil
		}
	}

	// --- HTTP webhook, health and metrics ---
	server := transporthttp.NewServer(transporthttp.Options{
		Address:  cfg.HTTP.Address,
		Registry: reg,
		Codec:    codec,
		Reactor:  d,
		Checks:   checks,
		Logger:   log,
	})
	go func() {
		if err := server.Start(); err != nil {
			zapLog.Error("http server failed", zap.Error(err))
		}
	}()

	zapLog.Info("sos worker started",
		zap.Bool("zeebe", cfg.Camunda.Enabled()),
		zap.Bool("nats", cfg.NATS.Enabled()),
		zap.String("http", cfg.HTTP.Address),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping http server", zap.Error(err))
	}
	if subscriber != nil {
		subscriber.Stop()
	}
	for _, w := range workers {
		w.Stop(10 * time.Second)
	}
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down metrics provider", zap.Error(err))
	}

	zapLog.Info("sos worker stopped gracefully")
}
