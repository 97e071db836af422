package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"paymentevents/internal/clock"
	"paymentevents/internal/config"
	"paymentevents/internal/infrastructure/objectstore"
	"paymentevents/internal/infrastructure/queue"
	"paymentevents/internal/worker"
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
	appLogger.Info("Ingestion worker starting...")

	if cfg.QueueURL == "" {
		appLogger.Fatal("QUEUE_URL is required")
	}
	if cfg.Bucket == "" {
		appLogger.Fatal("BUCKET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		appLogger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	eventQueue := queue.NewSQSQueue(
		sqs.NewFromConfig(awsCfg),
		queue.SQSConfig{
			QueueURL:          cfg.QueueURL,
			MaxMessages:       cfg.WorkerMaxMessages,
			WaitTime:          cfg.WorkerWaitTime,
			VisibilityTimeout: cfg.WorkerVisibilityTimeout,
		},
		appLogger.With(zap.String("component", "SQSQueue")),
	)

	store := objectstore.NewS3Store(
		s3.NewFromConfig(awsCfg),
		cfg.Bucket,
		appLogger.With(zap.String("component", "S3Store")),
	)

	ingestor := worker.NewIngestor(
		eventQueue,
		store,
		worker.Config{
			RawPrefix:        cfg.RawPrefix,
			QuarantinePrefix: cfg.QuarantinePrefix,
			ReceivePause:     time.Second,
		},
		clock.System{},
		appLogger.With(zap.String("component", "Ingestor")),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ingestor.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down...")
	cancel()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		appLogger.Warn("Worker did not stop cleanly within 15 seconds")
	}
	appLogger.Info("Ingestion worker shut down")
}
