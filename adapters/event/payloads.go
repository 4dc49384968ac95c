package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/internal/domain/reconcile"
)

type ReportEventType string

const (
	ReportEventExportCompleted  ReportEventType = "export.completed"
	ReportEventRestoreCompleted ReportEventType = "restore.completed"
)

// ReportEventPayload is published on TopicReports after every job.
type ReportEventPayload struct {
	EventType     ReportEventType   `json:"event_type"`
	JobID         uuid.UUID         `json:"job_id"`
	Server        string            `json:"server"`
	SnapshotID    uuid.UUID         `json:"snapshot_id,omitempty"`
	RunID         uuid.UUID         `json:"run_id,omitempty"`
	CategoryCount int               `json:"category_count,omitempty"`
	TagCount      int               `json:"tag_count,omitempty"`
	Location      string            `json:"location,omitempty"`
	ExitCode      int               `json:"exit_code"`
	Report        *reconcile.Report `json:"report,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
