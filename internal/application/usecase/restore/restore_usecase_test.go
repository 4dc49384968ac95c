package restore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/adapters/inmemory"
	"github.com/khoahotran/tagvault/internal/application/service"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type fakePublisher struct {
	restores []service.RestoreCompleted
}

func (p *fakePublisher) PublishExportCompleted(ctx context.Context, e service.ExportCompleted) error {
	return nil
}

func (p *fakePublisher) PublishRestoreCompleted(ctx context.Context, e service.RestoreCompleted) error {
	p.restores = append(p.restores, e)
	return nil
}

type RestoreTestSuite struct {
	suite.Suite
	ctx       context.Context
	dialer    *inmemory.Dialer
	repo      *inmemory.HistoryRepo
	locker    *inmemory.Locker
	publisher *fakePublisher
	uc        *RestoreUseCase
}

func (s *RestoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dialer = inmemory.NewDialer("vc02.lab")
	s.repo = inmemory.NewHistoryRepo()
	s.locker = inmemory.NewLocker()
	s.publisher = &fakePublisher{}

	var cfg config.Config
	cfg.VCenter.Server = "vc02.lab"
	cfg.Restore.LockTTL = time.Minute
	log := logger.NewNopLogger()
	s.uc = NewRestoreUseCase(cfg, s.dialer, reconcileUC.NewEngine(log), s.repo, s.locker, s.publisher, log)
}

func TestRestore(t *testing.T) {
	suite.Run(t, new(RestoreTestSuite))
}

func desired() *taxonomy.Snapshot {
	return &taxonomy.Snapshot{
		Categories: []taxonomy.Category{{Name: "App", EntityTypes: []string{"VirtualMachine"}}},
		Tags:       []taxonomy.Tag{{Name: "Finance", CategoryName: "App"}},
	}
}

func (s *RestoreTestSuite) archive(snap *taxonomy.Snapshot) uuid.UUID {
	doc, err := codec.Marshal(snap, codec.FormatJSON)
	s.Require().NoError(err)
	id := uuid.New()
	s.Require().NoError(s.repo.SaveSnapshot(s.ctx, &history.ArchivedSnapshot{ID: id, Document: doc, CreatedAt: time.Now()}))
	return id
}

func (s *RestoreTestSuite) Test_FromArchive_LiveApply() {
	id := s.archive(desired())

	out, err := s.uc.Execute(s.ctx, RestoreInput{SnapshotID: &id})
	s.Require().NoError(err)
	s.Equal(1, out.Report.Categories.Created)
	s.Equal(1, out.Report.Tags.Created)
	s.Equal(reconcile.ExitOK, out.ExitCode)

	_, ok := s.dialer.Store("vc02.lab").Tag("Finance", "App")
	s.True(ok)
	s.False(s.locker.Held("restore:vc02.lab"))

	runs, err := s.repo.ListRuns(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(out.RunID, runs[0].ID)
	s.Equal(history.RunStatusSucceeded, runs[0].Status)
	s.Equal(id, *runs[0].SnapshotID)

	s.Require().Len(s.publisher.restores, 1)
	s.Equal("vc02.lab", s.publisher.restores[0].TargetServer)
}

func (s *RestoreTestSuite) Test_InlineDryRun_RecordsFailedRun() {
	out, err := s.uc.Execute(s.ctx, RestoreInput{
		Snapshot: desired(),
		Target:   service.Target{Server: "vc03.lab"},
		Options:  reconcileUC.Options{DryRun: true},
	})
	s.Require().NoError(err)
	s.Equal(reconcile.ExitItemFailures, out.ExitCode)
	s.Equal(0, s.dialer.Store("vc03.lab").Mutations())

	runs, _ := s.repo.ListRuns(s.ctx, 10, 0)
	s.Require().Len(runs, 1)
	s.Equal("vc03.lab", runs[0].TargetServer)
	s.Equal(history.RunStatusFailed, runs[0].Status)
	s.Nil(runs[0].SnapshotID)
	s.True(runs[0].DryRun)
}

func (s *RestoreTestSuite) Test_LockHeld_IsConflict() {
	lease, err := s.locker.Acquire(s.ctx, "restore:vc02.lab", time.Minute)
	s.Require().NoError(err)
	defer lease.Release(s.ctx)

	out, err := s.uc.Execute(s.ctx, RestoreInput{Snapshot: desired()})
	s.Nil(out)
	s.ErrorIs(err, apperror.ErrConflict)
	s.Equal(0, s.dialer.Store("vc02.lab").Calls(inmemory.OpListCategories))
}

func (s *RestoreTestSuite) Test_ConnectionFailure_NoRunRecorded() {
	s.dialer.DialErr = apperror.NewUnavailable("vc02.lab", errors.New("no route to host"))

	out, err := s.uc.Execute(s.ctx, RestoreInput{Snapshot: desired()})
	s.Nil(out)
	s.ErrorIs(err, apperror.ErrUnavailable)

	runs, _ := s.repo.ListRuns(s.ctx, 10, 0)
	s.Empty(runs)
	s.False(s.locker.Held("restore:vc02.lab"))
}

func (s *RestoreTestSuite) Test_SessionLost_ReturnsPartialReport() {
	s.dialer.Store("vc02.lab").Fail = func(op inmemory.Op, name string) error {
		if op == inmemory.OpCreateTag {
			return fmt.Errorf("create: %w", taxonomy.ErrSessionLost)
		}
		return nil
	}

	out, err := s.uc.Execute(s.ctx, RestoreInput{Snapshot: desired()})
	s.Require().Error(err)
	s.ErrorIs(err, taxonomy.ErrSessionLost)
	s.Require().NotNil(out)
	s.True(out.Report.Aborted)
	s.Equal(reconcile.ExitFatal, out.ExitCode)
	s.Equal(1, out.Report.Categories.Created)

	runs, _ := s.repo.ListRuns(s.ctx, 10, 0)
	s.Require().Len(runs, 1)
	s.Equal(history.RunStatusAborted, runs[0].Status)
}

func (s *RestoreTestSuite) Test_LongRun_KeepsLockPastTTL() {
	var cfg config.Config
	cfg.Restore.LockTTL = 30 * time.Millisecond
	log := logger.NewNopLogger()
	uc := NewRestoreUseCase(cfg, s.dialer, reconcileUC.NewEngine(log), s.repo, s.locker, s.publisher, log)

	var contended error
	s.dialer.Store("vc02.lab").Fail = func(op inmemory.Op, name string) error {
		if op == inmemory.OpCreateTag {
			time.Sleep(150 * time.Millisecond)
			_, contended = s.locker.Acquire(s.ctx, "restore:vc02.lab", time.Minute)
		}
		return nil
	}

	out, err := uc.Execute(s.ctx, RestoreInput{Snapshot: desired(), Target: service.Target{Server: "vc02.lab"}})
	s.Require().NoError(err)
	s.Equal(reconcile.ExitOK, out.ExitCode)
	s.ErrorIs(contended, service.ErrLockHeld)
	s.False(s.locker.Held("restore:vc02.lab"))
}

func (s *RestoreTestSuite) Test_SnapshotResolution() {
	_, err := s.uc.Execute(s.ctx, RestoreInput{})
	s.ErrorIs(err, apperror.ErrInvalidInput)

	missing := uuid.New()
	_, err = s.uc.Execute(s.ctx, RestoreInput{SnapshotID: &missing})
	s.ErrorIs(err, history.ErrSnapshotNotFound)

	broken := uuid.New()
	s.Require().NoError(s.repo.SaveSnapshot(s.ctx, &history.ArchivedSnapshot{ID: broken, Document: []byte(`{"Tags": []}`)}))
	_, err = s.uc.Execute(s.ctx, RestoreInput{SnapshotID: &broken})
	s.ErrorIs(err, apperror.ErrInvalidInput)
	s.ErrorIs(err, taxonomy.ErrMalformedSnapshot)

	s.Equal(0, s.dialer.Store("vc02.lab").Calls(inmemory.OpListCategories))
}
