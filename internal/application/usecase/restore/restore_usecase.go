package restore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/internal/application/service"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

var tracer = otel.Tracer("restore_usecase")

// RestoreUseCase drives one reconciliation run. The repository, locker and
// publisher are optional.
type RestoreUseCase struct {
	cfg       config.Config
	dialer    service.GatewayDialer
	engine    *reconcileUC.Engine
	repo      history.Repository
	locker    service.RunLocker
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewRestoreUseCase(
	cfg config.Config,
	dialer service.GatewayDialer,
	engine *reconcileUC.Engine,
	repo history.Repository,
	locker service.RunLocker,
	publisher service.EventPublisher,
	log logger.Logger,
) *RestoreUseCase {
	return &RestoreUseCase{
		cfg:       cfg,
		dialer:    dialer,
		engine:    engine,
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		logger:    log,
	}
}

// RestoreInput carries the desired state either inline (Snapshot) or as a
// reference into the archive (SnapshotID). Inline wins when both are set.
type RestoreInput struct {
	JobID      uuid.UUID
	Target     service.Target
	Snapshot   *taxonomy.Snapshot
	SnapshotID *uuid.UUID
	Options    reconcileUC.Options
}

type RestoreOutput struct {
	RunID    uuid.UUID
	Report   *reconcile.Report
	ExitCode int
}

// Execute returns a nil output only when the run never started: a missing or
// malformed snapshot, no session, or the lock held by another run. Once the
// engine ran, the output carries its report even if err is set.
func (uc *RestoreUseCase) Execute(ctx context.Context, input RestoreInput) (*RestoreOutput, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	snap, err := uc.resolveSnapshot(ctx, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	session, err := uc.dialer.Dial(ctx, input.Target)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("Failed to close session", zap.Error(err))
		}
	}()

	// The session reports the canonical host, so every spelling of one
	// vCenter shares a lock.
	server := session.Server()
	span.SetAttributes(
		attribute.String("server", server),
		attribute.Bool("dry_run", input.Options.DryRun),
	)

	if uc.locker != nil {
		ttl := uc.cfg.Restore.LockTTL
		lease, err := uc.locker.Acquire(ctx, "restore:"+server, ttl)
		if err != nil {
			if errors.Is(err, service.ErrLockHeld) {
				return nil, apperror.NewConflict("restore run", "target", server)
			}
			return nil, apperror.NewInternal("failed to acquire run lock", err)
		}
		stop := uc.keepLease(ctx, lease, server, ttl)
		defer func() {
			stop()
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				uc.logger.Warn("Failed to release run lock", zap.String("server", server), zap.Error(err))
			}
		}()
	}

	started := time.Now().UTC()
	report, runErr := uc.engine.Run(ctx, session, snap, input.Options)
	finished := time.Now().UTC()

	run := &history.Run{
		ID:             uuid.New(),
		TargetServer:   server,
		SnapshotID:     input.SnapshotID,
		DryRun:         input.Options.DryRun,
		UpdateExisting: input.Options.UpdateExisting,
		Status:         history.StatusFor(report),
		Report:         report,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if input.Snapshot != nil {
		run.SnapshotID = nil
	}

	if uc.repo != nil {
		if err := uc.repo.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			uc.logger.Error("Failed to record run", err, zap.String("run_id", run.ID.String()))
		}
	}
	if uc.publisher != nil {
		err := uc.publisher.PublishRestoreCompleted(context.WithoutCancel(ctx), service.RestoreCompleted{
			JobID:        input.JobID,
			RunID:        run.ID,
			TargetServer: run.TargetServer,
			Report:       report,
		})
		if err != nil {
			uc.logger.Warn("Failed to publish restore event", zap.Error(err))
		}
	}

	uc.logger.Info("Restore run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("server", run.TargetServer),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", finished.Sub(started)),
	)

	out := &RestoreOutput{RunID: run.ID, Report: report, ExitCode: report.ExitCode()}
	if runErr != nil {
		span.RecordError(runErr)
		return out, apperror.NewInternal("reconciliation aborted", runErr)
	}
	return out, nil
}

// keepLease extends the run lock every third of its ttl until stop is
// called. A run whose lease is lost keeps going; the loss is only logged.
func (uc *RestoreUseCase) keepLease(ctx context.Context, lease service.Lease, server string, ttl time.Duration) (stop func()) {
	if ttl <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := lease.Extend(ctx, ttl)
			if err == nil || ctx.Err() != nil {
				continue
			}
			uc.logger.Warn("Failed to extend run lock", zap.String("server", server), zap.Duration("ttl", ttl), zap.Error(err))
			if errors.Is(err, service.ErrLockLost) {
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (uc *RestoreUseCase) resolveSnapshot(ctx context.Context, input RestoreInput) (*taxonomy.Snapshot, error) {
	if input.Snapshot != nil {
		return input.Snapshot, nil
	}
	if input.SnapshotID == nil {
		return nil, apperror.NewInvalidInput("a snapshot or snapshot id is required", nil)
	}
	if uc.repo == nil {
		return nil, apperror.NewInvalidInput("snapshot archive is not configured", nil)
	}

	archived, err := uc.repo.FindSnapshot(ctx, *input.SnapshotID)
	if err != nil {
		return nil, err
	}
	snap, err := codec.Unmarshal(archived.Document, codec.FormatJSON)
	if err != nil {
		return nil, apperror.NewInvalidInput("archived snapshot is malformed", err)
	}
	return snap, nil
}
