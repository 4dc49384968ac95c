package backup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

var tracer = otel.Tracer("backup_usecase")

// BackupUseCase captures a live taxonomy and stores it wherever the input
// asks: a local file, the snapshot archive, and an off-site copy. The
// repository, uploader and publisher are optional.
type BackupUseCase struct {
	cfg       config.Config
	dialer    service.GatewayDialer
	exporter  *export.Exporter
	repo      history.Repository
	uploader  service.SnapshotUploader
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewBackupUseCase(
	cfg config.Config,
	dialer service.GatewayDialer,
	exporter *export.Exporter,
	repo history.Repository,
	uploader service.SnapshotUploader,
	publisher service.EventPublisher,
	log logger.Logger,
) *BackupUseCase {
	return &BackupUseCase{
		cfg:       cfg,
		dialer:    dialer,
		exporter:  exporter,
		repo:      repo,
		uploader:  uploader,
		publisher: publisher,
		logger:    log,
	}
}

type BackupInput struct {
	JobID                   uuid.UUID
	Target                  service.Target
	ExcludeSystemCategories bool
	IncludeUsage            bool
	OutputPath              string
	Archive                 bool
	Upload                  bool
}

type BackupOutput struct {
	Snapshot   *taxonomy.Snapshot
	SnapshotID uuid.UUID
	OutputPath string
	Location   string
}

func (uc *BackupUseCase) Execute(ctx context.Context, input BackupInput) (*BackupOutput, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

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
	server := session.Server()
	span.SetAttributes(attribute.String("server", server))

	snap, err := uc.exporter.Export(ctx, session, export.Options{
		SourceServer:            server,
		ExcludeSystemCategories: input.ExcludeSystemCategories,
		IncludeUsage:            input.IncludeUsage,
		SystemCategoryPrefix:    uc.cfg.Export.SystemCategoryPrefix,
	})
	if err != nil {
		span.RecordError(err)
		uc.logger.Error("Export failed", err, zap.String("server", server))
		return nil, apperror.NewInternal("export failed", err)
	}

	document, err := codec.Marshal(snap, codec.FormatJSON)
	if err != nil {
		return nil, apperror.NewInternal("failed to encode snapshot", err)
	}

	out := &BackupOutput{Snapshot: snap}

	if input.OutputPath != "" {
		if err := codec.WriteFile(input.OutputPath, snap); err != nil {
			return nil, apperror.NewInternal("failed to write snapshot file", err)
		}
		out.OutputPath = input.OutputPath
		uc.logger.Info("Snapshot written", zap.String("path", input.OutputPath))
	}

	if input.Archive && uc.repo != nil {
		archived := &history.ArchivedSnapshot{
			ID:            uuid.New(),
			SourceServer:  server,
			ToolVersion:   snap.Metadata.ToolVersion,
			ExportedAt:    snap.Metadata.ExportDate,
			CategoryCount: len(snap.Categories),
			TagCount:      len(snap.Tags),
			Document:      document,
			CreatedAt:     time.Now().UTC(),
		}
		if err := uc.repo.SaveSnapshot(ctx, archived); err != nil {
			span.RecordError(err)
			return nil, err
		}
		out.SnapshotID = archived.ID
		uc.logger.Info("Snapshot archived", zap.String("snapshot_id", archived.ID.String()))
	}

	if input.Upload && uc.uploader != nil {
		folder := fmt.Sprintf("%s/%s", strings.TrimSuffix(uc.cfg.Cloudinary.Folder, "/"), sanitizeServer(server))
		publicID := snap.Metadata.ExportDate.Format("2006-01-02_15-04-05") + ".json"

		uploadURL, err := uc.uploader.Upload(ctx, bytes.NewReader(document), folder, publicID)
		if err != nil {
			span.RecordError(err)
			uc.logger.Error("Failed to upload snapshot to Cloudinary", err, zap.String("folder", folder))
			return nil, apperror.NewInternal("failed to upload snapshot", err)
		}
		out.Location = uploadURL
		uc.logger.Info("Snapshot uploaded successfully", zap.String("url", uploadURL), zap.String("public_id", folder+"/"+publicID))
	}

	if uc.publisher != nil {
		err := uc.publisher.PublishExportCompleted(ctx, service.ExportCompleted{
			JobID:         input.JobID,
			SnapshotID:    out.SnapshotID,
			SourceServer:  server,
			CategoryCount: len(snap.Categories),
			TagCount:      len(snap.Tags),
			Location:      out.Location,
		})
		if err != nil {
			uc.logger.Warn("Failed to publish export event", zap.Error(err))
		}
	}

	span.SetAttributes(attribute.Int("categories", len(snap.Categories)), attribute.Int("tags", len(snap.Tags)))
	return out, nil
}

// sanitizeServer turns a server address into a single path segment.
func sanitizeServer(server string) string {
	r := strings.NewReplacer("https://", "", "http://", "", "/", "_", ":", "_")
	if s := r.Replace(server); s != "" {
		return s
	}
	return "default"
}
