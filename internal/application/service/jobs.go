package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeExport  JobType = "export"
	JobTypeRestore JobType = "restore"
)

type ExportJob struct {
	Server                  string `json:"server,omitempty"`
	ExcludeSystemCategories bool   `json:"exclude_system_categories"`
	IncludeUsage            bool   `json:"include_usage"`
	Upload                  bool   `json:"upload"`
}

type RestoreJob struct {
	Server               string    `json:"server,omitempty"`
	SnapshotID           uuid.UUID `json:"snapshot_id"`
	UpdateExisting       bool      `json:"update_existing"`
	DryRun               bool      `json:"dry_run"`
	SimulateDependencies bool      `json:"simulate_dependencies"`
}

// Job is the unit of asynchronous work. Exactly one of Export or Restore
// is set, matching Type.
type Job struct {
	ID          uuid.UUID   `json:"id"`
	Type        JobType     `json:"type"`
	RequestedBy uuid.UUID   `json:"requested_by"`
	RequestedAt time.Time   `json:"requested_at"`
	Export      *ExportJob  `json:"export,omitempty"`
	Restore     *RestoreJob `json:"restore,omitempty"`
}

type JobQueue interface {
	EnqueueJob(ctx context.Context, job Job) error
}
