package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/event"
	"github.com/khoahotran/tagvault/adapters/media_storage"
	"github.com/khoahotran/tagvault/adapters/persistence"
	"github.com/khoahotran/tagvault/adapters/vcenter"
	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	"github.com/khoahotran/tagvault/internal/application/usecase/jobs"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/pkg/logger"
	"github.com/khoahotran/tagvault/pkg/tracing"
)

func main() {
	fmt.Println("Starting tagvault Worker...")

	// Configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env)
	defer appLogger.Sync()

	shutdownTracing := tracing.Setup(cfg, appLogger, "tagvault-worker")
	defer shutdownTracing(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbPool, err := persistence.NewPostgresPool(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("cannot connect Postgres", err)
	}
	defer dbPool.Close()

	redisClient, err := persistence.NewRedisClient(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("cannot connect Redis", err)
	}
	defer redisClient.Close()

	// Report events
	kafkaClient, err := event.NewKafkaProducerClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("cannot init Kafka", err)
	}
	defer kafkaClient.Close()

	// Cloudinary Uploader
	var uploader service.SnapshotUploader
	if cld, err := media_storage.NewCloudinaryAdapter(cfg, appLogger); err != nil {
		appLogger.Warn("Off-site upload disabled", zap.Error(err))
	} else {
		uploader = cld
	}

	// Repositories
	historyRepo := persistence.NewPostgresHistoryRepo(dbPool, appLogger)
	locker := persistence.NewRedisRunLocker(redisClient, appLogger)
	dialer := vcenter.NewDialer(cfg, appLogger)

	// Worker Use Case
	backupUseCase := backup.NewBackupUseCase(cfg, dialer, export.NewExporter(appLogger), historyRepo, uploader, kafkaClient, appLogger)
	restoreUseCase := restore.NewRestoreUseCase(cfg, dialer, reconcileUC.NewEngine(appLogger), historyRepo, locker, kafkaClient, appLogger)
	processJobUC := jobs.NewProcessJobUseCase(backupUseCase, restoreUseCase, appLogger)

	// Kafka Consumer
	jobConsumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    event.TopicJobs,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer jobConsumer.Close()

	appLogger.Info("Worker listening", zap.String("topic", event.TopicJobs), zap.String("group_id", cfg.Kafka.GroupID))

	consumer := event.NewJobConsumer(jobConsumer, processJobUC.Execute, appLogger)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Worker stopped", err)
		return
	}
	appLogger.Info("Worker stopping")
}
