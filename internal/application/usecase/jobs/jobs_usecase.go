package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

var tracer = otel.Tracer("jobs_usecase")

type EnqueueJobUseCase struct {
	queue  service.JobQueue
	logger logger.Logger
}

func NewEnqueueJobUseCase(queue service.JobQueue, log logger.Logger) *EnqueueJobUseCase {
	return &EnqueueJobUseCase{queue: queue, logger: log}
}

// Execute assigns the job its id and timestamp before queueing it.
func (uc *EnqueueJobUseCase) Execute(ctx context.Context, job service.Job) (*service.Job, error) {
	ctx, span := tracer.Start(ctx, "Enqueue")
	defer span.End()

	if err := Validate(job); err != nil {
		return nil, err
	}
	job.ID = uuid.New()
	job.RequestedAt = time.Now().UTC()
	span.SetAttributes(attribute.String("job_id", job.ID.String()), attribute.String("type", string(job.Type)))

	if err := uc.queue.EnqueueJob(ctx, job); err != nil {
		span.RecordError(err)
		uc.logger.Error("Failed to enqueue job", err, zap.String("type", string(job.Type)))
		return nil, apperror.NewInternal("failed to enqueue job", err)
	}
	return &job, nil
}

func Validate(job service.Job) error {
	switch job.Type {
	case service.JobTypeExport:
		if job.Export == nil || job.Restore != nil {
			return apperror.NewInvalidInput("export job requires only export parameters", nil)
		}
	case service.JobTypeRestore:
		if job.Restore == nil || job.Export != nil {
			return apperror.NewInvalidInput("restore job requires only restore parameters", nil)
		}
		if job.Restore.SnapshotID == uuid.Nil {
			return apperror.NewInvalidInput("restore job requires a snapshot id", nil)
		}
	default:
		return apperror.NewInvalidInput(fmt.Sprintf("unknown job type %q", job.Type), nil)
	}
	return nil
}

// ProcessJobUseCase runs queued jobs inside the worker.
type ProcessJobUseCase struct {
	backup  *backup.BackupUseCase
	restore *restore.RestoreUseCase
	logger  logger.Logger
}

func NewProcessJobUseCase(backupUC *backup.BackupUseCase, restoreUC *restore.RestoreUseCase, log logger.Logger) *ProcessJobUseCase {
	return &ProcessJobUseCase{backup: backupUC, restore: restoreUC, logger: log}
}

func (uc *ProcessJobUseCase) Execute(ctx context.Context, job service.Job) error {
	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", job.ID.String()), attribute.String("type", string(job.Type)))

	if err := Validate(job); err != nil {
		return err
	}
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("type", string(job.Type)))

	switch job.Type {
	case service.JobTypeExport:
		out, err := uc.backup.Execute(ctx, backup.BackupInput{
			JobID:                   job.ID,
			Target:                  service.Target{Server: job.Export.Server},
			ExcludeSystemCategories: job.Export.ExcludeSystemCategories,
			IncludeUsage:            job.Export.IncludeUsage,
			Archive:                 true,
			Upload:                  job.Export.Upload,
		})
		if err != nil {
			span.RecordError(err)
			return err
		}
		log.Info("Export job done", zap.String("snapshot_id", out.SnapshotID.String()))

	case service.JobTypeRestore:
		snapshotID := job.Restore.SnapshotID
		out, err := uc.restore.Execute(ctx, restore.RestoreInput{
			JobID:      job.ID,
			Target:     service.Target{Server: job.Restore.Server},
			SnapshotID: &snapshotID,
			Options: reconcileUC.Options{
				UpdateExisting:       job.Restore.UpdateExisting,
				DryRun:               job.Restore.DryRun,
				SimulateDependencies: job.Restore.SimulateDependencies,
			},
		})
		if err != nil {
			span.RecordError(err)
			return err
		}
		log.Info("Restore job done", zap.String("run_id", out.RunID.String()), zap.Int("exit_code", out.ExitCode))
	}
	return nil
}
