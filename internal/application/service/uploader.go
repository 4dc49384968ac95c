package service

import (
	"context"
	"io"
)

// SnapshotUploader keeps an off-site copy of encoded snapshots.
type SnapshotUploader interface {
	Upload(ctx context.Context, file io.Reader, folder string, publicID string) (string, error)
	Delete(ctx context.Context, publicID string) error
}
