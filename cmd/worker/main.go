package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/app"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/config"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/email"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/metrics"
	miniostorage "github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/minio"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/postgres"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/rabbitmq"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/tracing"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/usecase"
	"github.com/Balaji-Ram-R/Squats-Analyzer/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
	log.Info("squats-analyzer worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	stopTracing := tracing.Start(ctx, cfg.JaegerEndpoint, "worker", log)
	defer stopTracing(context.Background())

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Warn("migrations not applied", zap.Error(err))
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ResultBucket: cfg.MinIOResultBucket,
	})
	if err != nil {
		return fmt.Errorf("create minio storage: %w", err)
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("ensure minio buckets: %w", err)
	}

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq for publisher: %w", err)
	}
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	analyzer, err := app.NewAnalyzer(cfg, log)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	uc := usecase.NewProcessAnalysisUseCase(
		postgres.NewJobRepository(pool),
		storage,
		analyzer,
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.ProcessAnalysisConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			FrameLog:   cfg.FrameLogEnabled,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, pool.Ping, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	log.Info("squats-analyzer worker started",
		zap.String("pose_provider", cfg.PoseProvider),
		zap.Int("workers", cfg.WorkerCount),
	)
	return consumer.Start(ctx)
}
