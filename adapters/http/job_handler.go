package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/jobs"
	"github.com/khoahotran/tagvault/pkg/apperror"
)

type JobHandler struct {
	enqueueUseCase *jobs.EnqueueJobUseCase
}

func NewJobHandler(uc *jobs.EnqueueJobUseCase) *JobHandler {
	return &JobHandler{enqueueUseCase: uc}
}

// Submit queues an export or restore for the worker and answers 202.
func (h *JobHandler) Submit(c *gin.Context) {
	operatorID, ok := GetOperatorIDFromGinContext(c)
	if !ok {
		c.Error(apperror.NewUnauthorized("operator information not found", nil))
		return
	}

	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid job request", err))
		return
	}

	job := service.Job{
		Type:        service.JobType(req.Type),
		RequestedBy: operatorID,
	}
	if req.Export != nil {
		job.Export = &service.ExportJob{
			Server:                  req.Export.Server,
			ExcludeSystemCategories: req.Export.ExcludeSystemCategories,
			IncludeUsage:            req.Export.IncludeUsage,
			Upload:                  req.Export.Upload,
		}
	}
	if req.Restore != nil {
		job.Restore = &service.RestoreJob{
			Server:               req.Restore.Server,
			SnapshotID:           req.Restore.SnapshotID,
			UpdateExisting:       req.Restore.UpdateExisting,
			DryRun:               req.Restore.DryRun,
			SimulateDependencies: req.Restore.SimulateDependencies,
		}
	}

	queued, err := h.enqueueUseCase.Execute(c.Request.Context(), job)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, JobResponse{
		JobID:       queued.ID,
		Type:        string(queued.Type),
		RequestedAt: queued.RequestedAt,
	})
}
