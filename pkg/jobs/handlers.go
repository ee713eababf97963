package jobs

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// SourceChecker resolves an ingest source, refusing paths outside the import
// root.
type SourceChecker interface {
	Within(p string) (string, error)
}

type handler struct {
	jobService *Service
	sources    SourceChecker
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateJobPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	job, err := newJob(params, h.sources)
	if err != nil {
		return err
	}

	hasActive, err := h.jobService.HasActiveJobByType(ctx, job.Type)
	if err != nil {
		return errors.WithStack(err)
	}
	if hasActive {
		return errcodes.Conflict(fmt.Sprintf("A %s job is already running or pending.", job.Type))
	}

	if user := auth.UserFromContext(c); user != nil {
		job.CreatedByID = &user.ID
	}

	if err := h.jobService.CreateJob(ctx, job); err != nil {
		return errors.WithStack(err)
	}

	job, err = h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, job))
}

// newJob turns the payload into a pending job, checking the data against the
// job type.
func newJob(params CreateJobPayload, sources SourceChecker) (*models.Job, error) {
	data := params.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	job := &models.Job{
		Type:   params.Type,
		Status: models.JobStatusPending,
		Data:   string(raw),
	}
	if err := job.UnmarshalData(); err != nil {
		return nil, errcodes.ValidationTypeError(fmt.Sprintf("\"data\" is not valid for a %s job", params.Type))
	}

	if ingest, ok := job.DataParsed.(*models.JobIngestData); ok {
		if ingest.Source == "" {
			return nil, errcodes.ValidationError(`"data.source" is required`)
		}
		source, err := sources.Within(ingest.Source)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(source); err != nil {
			return nil, errcodes.ValidationError(fmt.Sprintf("%q does not exist on the server", ingest.Source))
		}
	}

	return job, nil
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Job")
	}

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListJobsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ctx, ListJobsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		Statuses: params.Status,
		Type:     params.Type,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total"`
	}{jobs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
