package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/internal/domain/reconcile"
)

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// ArchivedSnapshot is an encoded snapshot document kept for later restores.
type ArchivedSnapshot struct {
	ID            uuid.UUID `json:"id"`
	SourceServer  string    `json:"source_server"`
	ToolVersion   string    `json:"tool_version"`
	ExportedAt    time.Time `json:"exported_at"`
	CategoryCount int       `json:"category_count"`
	TagCount      int       `json:"tag_count"`
	Document      []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type Run struct {
	ID             uuid.UUID         `json:"id"`
	TargetServer   string            `json:"target_server"`
	SnapshotID     *uuid.UUID        `json:"snapshot_id,omitempty"`
	DryRun         bool              `json:"dry_run"`
	UpdateExisting bool              `json:"update_existing"`
	Status         RunStatus         `json:"status"`
	Report         *reconcile.Report `json:"report"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

func StatusFor(r *reconcile.Report) RunStatus {
	switch {
	case r.Aborted:
		return RunStatusAborted
	case r.HasFailures():
		return RunStatusFailed
	}
	return RunStatusSucceeded
}

type Repository interface {
	SaveSnapshot(ctx context.Context, s *ArchivedSnapshot) error
	FindSnapshot(ctx context.Context, id uuid.UUID) (*ArchivedSnapshot, error)
	ListSnapshots(ctx context.Context, limit, offset int) ([]*ArchivedSnapshot, error)
	SaveRun(ctx context.Context, r *Run) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
}
