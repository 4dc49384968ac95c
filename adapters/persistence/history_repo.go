package persistence

import (
	"context"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type postgresHistoryRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresHistoryRepo(db *pgxpool.Pool, log logger.Logger) history.Repository {
	return &postgresHistoryRepo{db: db, logger: log}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var snapshotSummaryColumns = []string{
	"id", "source_server", "tool_version", "exported_at", "category_count", "tag_count", "created_at",
}

var runColumns = []string{
	"id", "target_server", "snapshot_id", "dry_run", "update_existing", "status", "report", "started_at", "finished_at",
}

func (r *postgresHistoryRepo) SaveSnapshot(ctx context.Context, s *history.ArchivedSnapshot) error {
	query := `
		INSERT INTO snapshots (id, source_server, tool_version, exported_at, category_count, tag_count, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.SourceServer, s.ToolVersion, s.ExportedAt,
		s.CategoryCount, s.TagCount, s.Document, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewConflict("snapshot", "id", s.ID.String())
		}
		return apperror.NewInternal("failed to save snapshot", err)
	}
	return nil
}

func (r *postgresHistoryRepo) FindSnapshot(ctx context.Context, id uuid.UUID) (*history.ArchivedSnapshot, error) {
	query := `
		SELECT id, source_server, tool_version, exported_at, category_count, tag_count, created_at, document
		FROM snapshots
		WHERE id = $1
	`
	s := &history.ArchivedSnapshot{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.SourceServer,
		&s.ToolVersion,
		&s.ExportedAt,
		&s.CategoryCount,
		&s.TagCount,
		&s.CreatedAt,
		&s.Document,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewAppError(apperror.ErrNotFound, "snapshot not found",
				"snapshot with identifier '"+id.String()+"' was not found", history.ErrSnapshotNotFound)
		}
		return nil, apperror.NewInternal("failed to query snapshot", err)
	}
	return s, nil
}

func (r *postgresHistoryRepo) ListSnapshots(ctx context.Context, limit, offset int) ([]*history.ArchivedSnapshot, error) {
	builder := psql.Select(snapshotSummaryColumns...).
		From("snapshots").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build snapshot query", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query snapshots", err)
	}
	defer rows.Close()

	out := make([]*history.ArchivedSnapshot, 0)
	for rows.Next() {
		s := &history.ArchivedSnapshot{}
		if err := rows.Scan(&s.ID, &s.SourceServer, &s.ToolVersion, &s.ExportedAt, &s.CategoryCount, &s.TagCount, &s.CreatedAt); err != nil {
			return nil, apperror.NewInternal("failed to scan snapshot row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating snapshot rows", err)
	}
	return out, nil
}

func (r *postgresHistoryRepo) SaveRun(ctx context.Context, run *history.Run) error {
	reportBytes, err := json.Marshal(run.Report)
	if err != nil {
		return apperror.NewInternal("failed to marshal run report", err)
	}

	builder := psql.Insert("runs").
		Columns(runColumns...).
		Values(run.ID, run.TargetServer, run.SnapshotID, run.DryRun, run.UpdateExisting,
			string(run.Status), reportBytes, run.StartedAt, run.FinishedAt)

	sql, args, err := builder.ToSql()
	if err != nil {
		return apperror.NewInternal("failed to build run insert", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return apperror.NewInternal("failed to save run", err)
	}
	return nil
}

func (r *postgresHistoryRepo) ListRuns(ctx context.Context, limit, offset int) ([]*history.Run, error) {
	builder := psql.Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build run query", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query runs", err)
	}
	defer rows.Close()

	out := make([]*history.Run, 0)
	for rows.Next() {
		run := &history.Run{}
		var status string
		var reportBytes []byte
		if err := rows.Scan(&run.ID, &run.TargetServer, &run.SnapshotID, &run.DryRun, &run.UpdateExisting,
			&status, &reportBytes, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, apperror.NewInternal("failed to scan run row", err)
		}
		run.Status = history.RunStatus(status)
		run.Report = &reconcile.Report{}
		if err := json.Unmarshal(reportBytes, run.Report); err != nil {
			r.logger.Warn("Failed to unmarshal run report", zap.String("run_id", run.ID.String()), zap.Error(err))
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating run rows", err)
	}
	return out, nil
}
