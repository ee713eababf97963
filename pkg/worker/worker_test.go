package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lendshelf/lendshelf/pkg/books"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/jobs"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/lendshelf/lendshelf/pkg/testutils"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type stubRenderer struct{}

func (stubRenderer) Available() bool { return true }

func (stubRenderer) Render(payload string) ([]byte, error) {
	return []byte("png:" + payload), nil
}

type testContext struct {
	ctx         context.Context
	db          *bun.DB
	worker      *Worker
	bookService *books.Service
	jobService  *jobs.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutils.NewTestDB(t)
	cfg := config.NewForTest()
	cfg.WorkerProcesses = 1
	cfg.ImageMaxWidth = 0

	store := mediastore.NewMemoryStore()
	qrService := qrcodes.NewService(db, store, stubRenderer{})
	bookService := books.NewService(db, cfg, store, nil, qrService)

	return &testContext{
		ctx:         logger.New().WithContext(context.Background()),
		db:          db,
		worker:      New(cfg, db, bookService, qrService),
		bookService: bookService,
		jobService:  jobs.NewService(db),
	}
}

func (tc *testContext) createJob(t *testing.T, jobType string, data interface{}) *models.Job {
	t.Helper()
	job := &models.Job{Type: jobType, DataParsed: data}
	require.NoError(t, tc.jobService.CreateJob(tc.ctx, job))
	job, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	return job
}

func (tc *testContext) reload(t *testing.T, job *models.Job) *models.Job {
	t.Helper()
	job, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	return job
}

func TestClaimNext(t *testing.T) {
	tc := newTestContext(t)

	job, err := tc.worker.claimNext(tc.ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	created := tc.createJob(t, models.JobTypeQRCodes, &models.JobQRCodesData{})

	job, err = tc.worker.claimNext(tc.ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, created.ID, job.ID)
	assert.Equal(t, models.JobStatusInProgress, job.Status)

	stored := tc.reload(t, job)
	assert.Equal(t, models.JobStatusInProgress, stored.Status)
	require.NotNil(t, stored.ProcessID)
	assert.Equal(t, tc.worker.processID, *stored.ProcessID)

	// Already held by this process.
	job, err = tc.worker.claimNext(tc.ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNext_PicksUpJobsOfGoneProcesses(t *testing.T) {
	tc := newTestContext(t)

	created := tc.createJob(t, models.JobTypeQRCodes, &models.JobQRCodesData{})
	other := "previous-process"
	ok, err := tc.jobService.ClaimJob(tc.ctx, created, other)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := tc.worker.claimNext(tc.ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, tc.worker.processID, *job.ProcessID)
}

func TestClaimJob_SkipsFinishedJobs(t *testing.T) {
	tc := newTestContext(t)

	job := tc.createJob(t, models.JobTypeQRCodes, &models.JobQRCodesData{})
	job.Status = models.JobStatusCompleted
	require.NoError(t, tc.jobService.UpdateJob(tc.ctx, job, jobs.UpdateJobOptions{Columns: []string{"status"}}))

	ok, err := tc.jobService.ClaimJob(tc.ctx, job, "someone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessJob_Ingest(t *testing.T) {
	tc := newTestContext(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "骆驼祥子"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "骆驼祥子", "图书信息.json"), []byte(`{"author":"老舍","copies_count":2}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "没有信息"), 0o755))

	job := tc.createJob(t, models.JobTypeIngest, &models.JobIngestData{Source: root})
	tc.worker.processJob(job)

	job = tc.reload(t, job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	title := "骆驼祥子"
	book, err := tc.bookService.RetrieveBook(tc.ctx, books.RetrieveBookOptions{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "老舍", book.Author)
	require.Len(t, book.Copies, 2)
	for _, bc := range book.Copies {
		assert.NotNil(t, bc.QRCode)
	}

	logs, err := joblogs.NewService(tc.db).ListJobLogs(tc.ctx, joblogs.ListJobLogsOptions{JobID: job.ID})
	require.NoError(t, err)
	messages := []string{}
	for _, l := range logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "failed to import book")
	assert.Contains(t, messages, "some books were not imported")
	assert.Contains(t, messages, "finished importing books")
}

func TestProcessJob_IngestInvalidSourceFails(t *testing.T) {
	tc := newTestContext(t)

	job := tc.createJob(t, models.JobTypeIngest, &models.JobIngestData{Source: filepath.Join(t.TempDir(), "missing")})
	tc.worker.processJob(job)

	job = tc.reload(t, job)
	assert.Equal(t, models.JobStatusFailed, job.Status)

	logs, err := joblogs.NewService(tc.db).ListJobLogs(tc.ctx, joblogs.ListJobLogsOptions{
		JobID:  job.ID,
		Levels: []string{models.JobLogLevelFatal},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotNil(t, logs[0].StackTrace)
}

func TestProcessJob_QRCodes(t *testing.T) {
	tc := newTestContext(t)

	book := testutils.CreateBook(t, tc.db, "四世同堂", "老舍")
	for i := 0; i < 3; i++ {
		_, err := tc.db.NewInsert().Model(models.NewBookCopy(book.ID)).Exec(tc.ctx)
		require.NoError(t, err)
	}

	job := tc.createJob(t, models.JobTypeQRCodes, &models.JobQRCodesData{BookID: &book.ID})
	tc.worker.processJob(job)

	job = tc.reload(t, job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	copies, err := tc.bookService.ListCopies(tc.ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, copies, 3)
	for _, bc := range copies {
		assert.NotNil(t, bc.QRCode)
	}
}

func TestProcessJob_PanicMarksJobFailed(t *testing.T) {
	tc := newTestContext(t)
	tc.worker.processFuncs[models.JobTypeQRCodes] = func(context.Context, *models.Job, joblogs.Logger) error {
		panic("kaboom")
	}

	job := tc.createJob(t, models.JobTypeQRCodes, &models.JobQRCodesData{})
	tc.worker.processJob(job)

	job = tc.reload(t, job)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}
