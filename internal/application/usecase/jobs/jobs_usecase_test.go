package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/adapters/inmemory"
	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type memQueue struct {
	jobs []service.Job
	err  error
}

func (q *memQueue) EnqueueJob(ctx context.Context, job service.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		job  service.Job
		ok   bool
	}{
		{"export", service.Job{Type: service.JobTypeExport, Export: &service.ExportJob{}}, true},
		{"export missing params", service.Job{Type: service.JobTypeExport}, false},
		{"export with restore params", service.Job{Type: service.JobTypeExport, Export: &service.ExportJob{}, Restore: &service.RestoreJob{}}, false},
		{"restore", service.Job{Type: service.JobTypeRestore, Restore: &service.RestoreJob{SnapshotID: uuid.New()}}, true},
		{"restore without snapshot", service.Job{Type: service.JobTypeRestore, Restore: &service.RestoreJob{}}, false},
		{"unknown", service.Job{Type: "purge"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.job)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperror.ErrInvalidInput)
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	q := &memQueue{}
	uc := NewEnqueueJobUseCase(q, logger.NewNopLogger())

	job, err := uc.Execute(context.Background(), service.Job{Type: service.JobTypeExport, Export: &service.ExportJob{Server: "vc01"}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.False(t, job.RequestedAt.IsZero())
	require.Len(t, q.jobs, 1)
	assert.Equal(t, job.ID, q.jobs[0].ID)

	q.err = errors.New("broker down")
	_, err = uc.Execute(context.Background(), service.Job{Type: service.JobTypeExport, Export: &service.ExportJob{}})
	assert.ErrorIs(t, err, apperror.ErrInternal)

	_, err = uc.Execute(context.Background(), service.Job{Type: service.JobTypeRestore})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestProcess_ExportThenRestore(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()
	var cfg config.Config
	cfg.VCenter.Server = "vc01.lab"
	cfg.Restore.LockTTL = time.Minute

	dialer := inmemory.NewDialer("vc01.lab")
	dialer.Store("vc01.lab").Seed(
		[]taxonomy.Category{{Name: "Env", Cardinality: taxonomy.CardinalityMultiple}},
		[]taxonomy.Tag{{Name: "Prod", CategoryName: "Env"}},
	)
	repo := inmemory.NewHistoryRepo()

	backupUC := backup.NewBackupUseCase(cfg, dialer, export.NewExporter(log), repo, nil, nil, log)
	restoreUC := restore.NewRestoreUseCase(cfg, dialer, reconcileUC.NewEngine(log), repo, inmemory.NewLocker(), nil, log)
	uc := NewProcessJobUseCase(backupUC, restoreUC, log)

	require.NoError(t, uc.Execute(ctx, service.Job{
		ID:     uuid.New(),
		Type:   service.JobTypeExport,
		Export: &service.ExportJob{Server: "vc01.lab"},
	}))
	archived, err := repo.ListSnapshots(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	require.NoError(t, uc.Execute(ctx, service.Job{
		ID:      uuid.New(),
		Type:    service.JobTypeRestore,
		Restore: &service.RestoreJob{Server: "vc02.lab", SnapshotID: archived[0].ID},
	}))
	_, ok := dialer.Store("vc02.lab").Tag("Prod", "Env")
	assert.True(t, ok)

	runs, err := repo.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.RunStatusSucceeded, runs[0].Status)
}
