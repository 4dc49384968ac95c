package http

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
)

// Export DTOs

type ExportRequest struct {
	Server                  string `json:"server"`
	ExcludeSystemCategories bool   `json:"exclude_system_categories"`
	IncludeUsage            bool   `json:"include_usage"`
	Upload                  bool   `json:"upload"`
}

type ExportResponse struct {
	SnapshotID    uuid.UUID `json:"snapshot_id"`
	SourceServer  string    `json:"source_server"`
	CategoryCount int       `json:"category_count"`
	TagCount      int       `json:"tag_count"`
	Location      string    `json:"location,omitempty"`
}

// Snapshot DTOs

type SnapshotDTO struct {
	ID            uuid.UUID `json:"id"`
	SourceServer  string    `json:"source_server"`
	ToolVersion   string    `json:"tool_version"`
	ExportedAt    time.Time `json:"exported_at"`
	CategoryCount int       `json:"category_count"`
	TagCount      int       `json:"tag_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func ToSnapshotDTO(s *history.ArchivedSnapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:            s.ID,
		SourceServer:  s.SourceServer,
		ToolVersion:   s.ToolVersion,
		ExportedAt:    s.ExportedAt,
		CategoryCount: s.CategoryCount,
		TagCount:      s.TagCount,
		CreatedAt:     s.CreatedAt,
	}
}

// Restore DTOs

// RestoreRequest names either an archived snapshot or carries a snapshot
// document inline. The inline document wins when both are present.
type RestoreRequest struct {
	Server               string          `json:"server"`
	SnapshotID           *uuid.UUID      `json:"snapshot_id"`
	Snapshot             json.RawMessage `json:"snapshot"`
	UpdateExisting       bool            `json:"update_existing"`
	DryRun               bool            `json:"dry_run"`
	SimulateDependencies bool            `json:"simulate_dependencies"`
}

type RestoreResponse struct {
	RunID    uuid.UUID         `json:"run_id"`
	ExitCode int               `json:"exit_code"`
	Summary  string            `json:"summary"`
	Report   *reconcile.Report `json:"report"`
}

// Run DTOs

type RunDTO struct {
	ID             uuid.UUID         `json:"id"`
	TargetServer   string            `json:"target_server"`
	SnapshotID     *uuid.UUID        `json:"snapshot_id,omitempty"`
	DryRun         bool              `json:"dry_run"`
	UpdateExisting bool              `json:"update_existing"`
	Status         string            `json:"status"`
	Categories     reconcile.Counts  `json:"categories"`
	Tags           reconcile.Counts  `json:"tags"`
	Report         *reconcile.Report `json:"report,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

func ToRunDTO(r *history.Run, withReport bool) RunDTO {
	dto := RunDTO{
		ID:             r.ID,
		TargetServer:   r.TargetServer,
		SnapshotID:     r.SnapshotID,
		DryRun:         r.DryRun,
		UpdateExisting: r.UpdateExisting,
		Status:         string(r.Status),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	if r.Report != nil {
		dto.Categories = r.Report.Categories
		dto.Tags = r.Report.Tags
		if withReport {
			dto.Report = r.Report
		}
	}
	return dto
}

// Job DTOs

type RestoreJobRequest struct {
	Server               string    `json:"server"`
	SnapshotID           uuid.UUID `json:"snapshot_id"`
	UpdateExisting       bool      `json:"update_existing"`
	DryRun               bool      `json:"dry_run"`
	SimulateDependencies bool      `json:"simulate_dependencies"`
}

type JobRequest struct {
	Type    string             `json:"type" binding:"required,oneof=export restore"`
	Export  *ExportRequest     `json:"export"`
	Restore *RestoreJobRequest `json:"restore"`
}

type JobResponse struct {
	JobID       uuid.UUID `json:"job_id"`
	Type        string    `json:"type"`
	RequestedAt time.Time `json:"requested_at"`
}
