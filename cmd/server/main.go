package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/event"
	httpAdapter "github.com/khoahotran/tagvault/adapters/http"
	"github.com/khoahotran/tagvault/adapters/media_storage"
	"github.com/khoahotran/tagvault/adapters/persistence"
	"github.com/khoahotran/tagvault/adapters/vcenter"
	"github.com/khoahotran/tagvault/internal/application/service"
	authUC "github.com/khoahotran/tagvault/internal/application/usecase/auth"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	historyUC "github.com/khoahotran/tagvault/internal/application/usecase/history"
	"github.com/khoahotran/tagvault/internal/application/usecase/jobs"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
	"github.com/khoahotran/tagvault/pkg/tracing"
)

func main() {
	fmt.Println("Start tagvault API Server...")

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env)
	defer appLogger.Sync()

	shutdownTracing := tracing.Setup(cfg, appLogger, "tagvault-api")
	defer shutdownTracing(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies
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

	var (
		publisher  service.EventPublisher
		jobHandler *httpAdapter.JobHandler
	)
	kafkaClient, err := event.NewKafkaProducerClient(cfg, appLogger)
	if err != nil {
		appLogger.Warn("Kafka disabled, async jobs are unavailable", zap.Error(err))
	} else {
		defer kafkaClient.Close()
		publisher = kafkaClient
		jobHandler = httpAdapter.NewJobHandler(jobs.NewEnqueueJobUseCase(kafkaClient, appLogger))
	}

	var uploader service.SnapshotUploader
	if cld, err := media_storage.NewCloudinaryAdapter(cfg, appLogger); err != nil {
		appLogger.Warn("Off-site upload disabled", zap.Error(err))
	} else {
		uploader = cld
	}

	// Repositories
	userRepo := persistence.NewPostgresUserRepo(dbPool, appLogger)
	historyRepo := persistence.NewPostgresHistoryRepo(dbPool, appLogger)
	locker := persistence.NewRedisRunLocker(redisClient, appLogger)

	// Services
	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan)
	dialer := vcenter.NewDialer(cfg, appLogger)

	// Use Cases
	loginUseCase := authUC.NewLoginUseCase(userRepo, jwtSvc, appLogger)
	backupUseCase := backup.NewBackupUseCase(cfg, dialer, export.NewExporter(appLogger), historyRepo, uploader, publisher, appLogger)
	restoreUseCase := restore.NewRestoreUseCase(cfg, dialer, reconcileUC.NewEngine(appLogger), historyRepo, locker, publisher, appLogger)
	historyUseCase := historyUC.NewHistoryUseCase(historyRepo, appLogger)
	rssUseCase := historyUC.NewRSSUseCase(historyRepo, cfg.App.BaseURL, appLogger)

	// HTTP Handlers
	handlers := httpAdapter.Handlers{
		Auth:     httpAdapter.NewAuthHandler(loginUseCase, appLogger),
		Taxonomy: httpAdapter.NewTaxonomyHandler(backupUseCase, restoreUseCase, historyUseCase, appLogger),
		Jobs:     jobHandler,
		RSS:      httpAdapter.NewRSSHandler(rssUseCase, appLogger),
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(handlers, jwtSvc, appLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Server running", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Cannot run server", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", err)
	}
}
