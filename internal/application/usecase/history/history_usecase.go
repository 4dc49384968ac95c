package history

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type HistoryUseCase struct {
	repo   history.Repository
	logger logger.Logger
}

func NewHistoryUseCase(repo history.Repository, log logger.Logger) *HistoryUseCase {
	return &HistoryUseCase{repo: repo, logger: log}
}

type ListInput struct {
	Limit  int
	Offset int
}

func (in ListInput) normalize() (int, int) {
	limit, offset := in.Limit, in.Offset
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (uc *HistoryUseCase) ListSnapshots(ctx context.Context, input ListInput) ([]*history.ArchivedSnapshot, error) {
	limit, offset := input.normalize()
	snapshots, err := uc.repo.ListSnapshots(ctx, limit, offset)
	if err != nil {
		uc.logger.Error("Failed to list snapshots", err)
		return nil, err
	}
	return snapshots, nil
}

type SnapshotOutput struct {
	Archived *history.ArchivedSnapshot
	Snapshot *taxonomy.Snapshot
}

func (uc *HistoryUseCase) GetSnapshot(ctx context.Context, id uuid.UUID) (*SnapshotOutput, error) {
	archived, err := uc.repo.FindSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := codec.Unmarshal(archived.Document, codec.FormatJSON)
	if err != nil {
		uc.logger.Error("Archived snapshot does not decode", err, zap.String("snapshot_id", id.String()))
		return nil, apperror.NewInternal("archived snapshot is malformed", err)
	}
	return &SnapshotOutput{Archived: archived, Snapshot: snap}, nil
}

func (uc *HistoryUseCase) ListRuns(ctx context.Context, input ListInput) ([]*history.Run, error) {
	limit, offset := input.normalize()
	runs, err := uc.repo.ListRuns(ctx, limit, offset)
	if err != nil {
		uc.logger.Error("Failed to list runs", err)
		return nil, err
	}
	return runs, nil
}
