package joblogs

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/jobs"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	jobLogService *Service
	jobService    *jobs.Service
}

// ListJobLogsResponse carries the job along with its logs so a client polling
// with after_id can stop once the job has finished.
type ListJobLogsResponse struct {
	Job    *models.Job      `json:"job"`
	Logs   []*models.JobLog `json:"logs"`
	LastID *int             `json:"last_id,omitempty"`
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	jobID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Job")
	}

	params := ListJobLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &jobID})
	if err != nil {
		return errors.WithStack(err)
	}

	logs, err := h.jobLogService.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:   job.ID,
		AfterID: params.AfterID,
		Levels:  params.Level,
		Limit:   params.Limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := ListJobLogsResponse{Job: job, Logs: logs, LastID: params.AfterID}
	if len(logs) > 0 {
		resp.LastID = &logs[len(logs)-1].ID
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
