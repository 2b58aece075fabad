package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/tamnbq/bulkops-be/internal/blobstore"
	"github.com/tamnbq/bulkops-be/internal/config"
	"github.com/tamnbq/bulkops-be/internal/enqueuer"
	"github.com/tamnbq/bulkops-be/internal/scheduler"
	"github.com/tamnbq/bulkops-be/internal/store"
	"github.com/tamnbq/bulkops-be/shared/logger"
	"github.com/tamnbq/bulkops-be/shared/postgresql"
	"github.com/tamnbq/bulkops-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("SCHEDULER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/scheduler-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateSchedulerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting scheduler service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	actionStore := store.NewStore(dbClient, appLogger.Logger)

	enq := enqueuer.New(&enqueuer.Config{
		Logger:           appLogger.Logger,
		Source:           blobstore.NewReader(appLogger.Logger),
		Queue:            rabbitClient,
		Store:            actionStore,
		BatchSize:        cfg.Enqueuer.BatchSize,
		PublishPerSecond: cfg.Enqueuer.PublishPerSecond,
	})

	sweep := scheduler.New(actionStore, enq, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := cron.New()

	if _, err := c.AddFunc(cfg.Scheduler.SweepSpec, func() {
		if err := sweep.Run(ctx); err != nil {
			appLogger.Error("Schedule sweep failed",
				slog.Any("error", err),
			)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep_spec %q: %w", cfg.Scheduler.SweepSpec, err)
	}

	if cfg.Scheduler.ExpiryCleanup {
		if _, err := c.AddFunc("@hourly", func() {
			if err := sweep.ExpireRateBuckets(ctx, cfg.RateLimit.BucketTTL); err != nil {
				appLogger.Error("Rate bucket expiry failed",
					slog.Any("error", err),
				)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule rate bucket expiry: %w", err)
		}
	}

	c.Start()

	appLogger.Info("Scheduler service started successfully",
		slog.String("sweep_spec", cfg.Scheduler.SweepSpec),
		slog.Bool("expiry_cleanup", cfg.Scheduler.ExpiryCleanup),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	cancel()

	// Stop scheduling new runs, then wait for in-flight jobs.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		appLogger.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		appLogger.Warn("Scheduler shutdown timeout exceeded, forcing exit")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Scheduler service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
	}, logger)
}
