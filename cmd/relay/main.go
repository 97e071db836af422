package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"paymentevents/internal/clock"
	"paymentevents/internal/config"
	"paymentevents/internal/infrastructure/database"
	"paymentevents/internal/infrastructure/queue"
	"paymentevents/internal/relay"
	outbox_postgres "paymentevents/internal/repository/outbox_repo/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Outbox relay starting...")

	if cfg.QueueURL == "" {
		appLogger.Fatal("QUEUE_URL is required")
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(cfg.DBConfig)
		if err == nil {
			appLogger.Info("Connected to PostgreSQL database")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		appLogger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	eventQueue := queue.NewSQSQueue(
		sqs.NewFromConfig(awsCfg),
		queue.SQSConfig{QueueURL: cfg.QueueURL},
		appLogger.With(zap.String("component", "SQSQueue")),
	)

	processor := relay.NewProcessor(
		outbox_postgres.NewOutboxRepository(db),
		eventQueue,
		relay.Config{
			BatchSize:    cfg.RelayBatchSize,
			Backoff:      cfg.RelayBackoff,
			IdleInterval: cfg.RelayIdleInterval,
			WarnAttempts: cfg.RelayWarnAttempts,
			ProducerTag:  cfg.ProducerTag,
		},
		clock.System{},
		appLogger.With(zap.String("component", "RelayProcessor")),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down...")
	cancel()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		appLogger.Warn("Relay did not stop cleanly within 15 seconds")
	}
	appLogger.Info("Outbox relay shut down")
}
