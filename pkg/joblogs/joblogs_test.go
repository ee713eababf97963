package joblogs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/binder"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/jobs"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/testutils"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func createJob(t *testing.T, db *bun.DB) *models.Job {
	t.Helper()
	job := &models.Job{Type: models.JobTypeQRCodes, DataParsed: &models.JobQRCodesData{}}
	require.NoError(t, jobs.NewService(db).CreateJob(context.Background(), job))
	return job
}

func TestJobLogger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutils.NewTestDB(t)
	svc := NewService(db)
	job := createJob(t, db)

	l := svc.NewJobLogger(ctx, job.ID, logger.New())
	l.Info("started", nil)
	l.Warn("odd file", logger.Data{"file": strings.Repeat("x", maxDataValueLen+100)})
	l.Error("book failed", errors.New("no metadata"), logger.Data{"title": "红楼梦"})
	l.Fatal("job failed", errors.New("boom"), nil)

	logs, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, logs, 4)

	assert.Equal(t, models.JobLogLevelInfo, logs[0].Level)
	assert.Nil(t, logs[0].Data)

	require.NotNil(t, logs[1].Data)
	data := map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(*logs[1].Data), &data))
	assert.Len(t, data["file"], maxDataValueLen-1)
	assert.Contains(t, data["file"], " ... ")

	require.NotNil(t, logs[2].Data)
	assert.Contains(t, *logs[2].Data, `"error":"no metadata"`)
	assert.Contains(t, *logs[2].Data, "红楼梦")
	assert.Nil(t, logs[2].StackTrace)

	assert.Equal(t, models.JobLogLevelFatal, logs[3].Level)
	assert.NotNil(t, logs[3].StackTrace)

	after := logs[1].ID
	logs, err = svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: job.ID, AfterID: &after, Levels: []string{models.JobLogLevelError}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "book failed", logs[0].Message)
}

func TestListHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutils.NewTestDB(t)
	job := createJob(t, db)
	l := NewService(db).NewJobLogger(ctx, job.ID, logger.New())
	l.Info("one", nil)
	l.Info("two", nil)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	RegisterRoutes(e.Group("/jobs"), db)

	get := func(path string) (*httptest.ResponseRecorder, ListJobLogsResponse) {
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		resp := ListJobLogsResponse{}
		if rr.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		}
		return rr, resp
	}

	path := "/jobs/" + strconv.Itoa(job.ID) + "/logs"
	rr, resp := get(path)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, job.ID, resp.Job.ID)
	require.NotNil(t, resp.LastID)
	assert.Equal(t, resp.Logs[1].ID, *resp.LastID)

	last := *resp.LastID
	rr, resp = get(path + "?after_id=" + strconv.Itoa(last))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, resp.Logs)
	require.NotNil(t, resp.LastID)
	assert.Equal(t, last, *resp.LastID)

	rr, _ = get("/jobs/999/logs")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
