package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	historyUC "github.com/khoahotran/tagvault/internal/application/usecase/history"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

// TaxonomyHandler serves synchronous exports and restores plus the archive
// and run history behind them.
type TaxonomyHandler struct {
	backupUseCase  *backup.BackupUseCase
	restoreUseCase *restore.RestoreUseCase
	historyUseCase *historyUC.HistoryUseCase
	logger         logger.Logger
}

func NewTaxonomyHandler(
	backupUC *backup.BackupUseCase,
	restoreUC *restore.RestoreUseCase,
	listUC *historyUC.HistoryUseCase,
	log logger.Logger,
) *TaxonomyHandler {
	return &TaxonomyHandler{
		backupUseCase:  backupUC,
		restoreUseCase: restoreUC,
		historyUseCase: listUC,
		logger:         log,
	}
}

func (h *TaxonomyHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid export request", err))
		return
	}

	output, err := h.backupUseCase.Execute(c.Request.Context(), backup.BackupInput{
		Target:                  service.Target{Server: req.Server},
		ExcludeSystemCategories: req.ExcludeSystemCategories,
		IncludeUsage:            req.IncludeUsage,
		Archive:                 true,
		Upload:                  req.Upload,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, ExportResponse{
		SnapshotID:    output.SnapshotID,
		SourceServer:  output.Snapshot.Metadata.SourceServer,
		CategoryCount: len(output.Snapshot.Categories),
		TagCount:      len(output.Snapshot.Tags),
		Location:      output.Location,
	})
}

func (h *TaxonomyHandler) Restore(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid restore request", err))
		return
	}

	input := restore.RestoreInput{
		Target:     service.Target{Server: req.Server},
		SnapshotID: req.SnapshotID,
		Options: reconcileUC.Options{
			UpdateExisting:       req.UpdateExisting,
			DryRun:               req.DryRun,
			SimulateDependencies: req.SimulateDependencies,
		},
	}
	if len(req.Snapshot) > 0 && string(req.Snapshot) != "null" {
		snap, err := codec.Unmarshal(req.Snapshot, codec.FormatJSON)
		if err != nil {
			c.Error(apperror.NewInvalidInput("snapshot document is malformed", err))
			return
		}
		input.Snapshot = snap
	}

	output, err := h.restoreUseCase.Execute(c.Request.Context(), input)
	if err != nil && output == nil {
		c.Error(err)
		return
	}

	resp := RestoreResponse{
		RunID:    output.RunID,
		ExitCode: output.ExitCode,
		Summary:  output.Report.Summary(),
		Report:   output.Report,
	}
	if err != nil {
		h.logger.Warn("Restore aborted", zap.String("run_id", output.RunID.String()), zap.Error(err))
		body := gin.H{"error": err.Error(), "run": resp}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			body = appErr.ToJSON()
			body["run"] = resp
		}
		c.JSON(apperror.ToHTTPStatus(err), body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TaxonomyHandler) ListSnapshots(c *gin.Context) {
	snapshots, err := h.historyUseCase.ListSnapshots(c.Request.Context(), listInput(c))
	if err != nil {
		c.Error(err)
		return
	}

	dtos := make([]SnapshotDTO, len(snapshots))
	for i, s := range snapshots {
		dtos[i] = ToSnapshotDTO(s)
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": dtos})
}

// GetSnapshot returns the archived document itself, in JSON or YAML.
func (h *TaxonomyHandler) GetSnapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(apperror.NewInvalidInput("invalid snapshot id", err))
		return
	}

	output, err := h.historyUseCase.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	format := codec.FormatJSON
	if c.Query("format") == "yaml" {
		format = codec.FormatYAML
	}
	body, err := codec.Marshal(output.Snapshot, format)
	if err != nil {
		c.Error(apperror.NewInternal("failed to encode snapshot", err))
		return
	}
	c.Data(http.StatusOK, format.ContentType(), body)
}

func (h *TaxonomyHandler) ListRuns(c *gin.Context) {
	runs, err := h.historyUseCase.ListRuns(c.Request.Context(), listInput(c))
	if err != nil {
		c.Error(err)
		return
	}

	withReport := c.Query("report") == "true"
	dtos := make([]RunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = ToRunDTO(r, withReport)
	}
	c.JSON(http.StatusOK, gin.H{"runs": dtos})
}

func listInput(c *gin.Context) historyUC.ListInput {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return historyUC.ListInput{Limit: limit, Offset: offset}
}
