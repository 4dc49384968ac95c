package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/internal/domain/reconcile"
)

type ExportCompleted struct {
	JobID         uuid.UUID
	SnapshotID    uuid.UUID
	SourceServer  string
	CategoryCount int
	TagCount      int
	Location      string
}

type RestoreCompleted struct {
	JobID        uuid.UUID
	RunID        uuid.UUID
	TargetServer string
	Report       *reconcile.Report
}

type EventPublisher interface {
	PublishExportCompleted(ctx context.Context, e ExportCompleted) error
	PublishRestoreCompleted(ctx context.Context, e RestoreCompleted) error
}
