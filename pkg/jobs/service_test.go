package jobs

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/filesystem"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/testutils"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasActiveJobByType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		jobs     []*models.Job
		expected bool
	}{
		{"no jobs", nil, false},
		{"pending", []*models.Job{
			{Type: models.JobTypeIngest, Status: models.JobStatusPending, DataParsed: &models.JobIngestData{Source: "/books"}},
		}, true},
		{"in progress", []*models.Job{
			{Type: models.JobTypeIngest, Status: models.JobStatusInProgress, DataParsed: &models.JobIngestData{Source: "/books"}},
		}, true},
		{"completed and failed", []*models.Job{
			{Type: models.JobTypeIngest, Status: models.JobStatusCompleted, DataParsed: &models.JobIngestData{Source: "/books"}},
			{Type: models.JobTypeIngest, Status: models.JobStatusFailed, DataParsed: &models.JobIngestData{Source: "/books"}},
		}, false},
		{"other type", []*models.Job{
			{Type: models.JobTypeQRCodes, Status: models.JobStatusPending, DataParsed: &models.JobQRCodesData{}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			svc := NewService(testutils.NewTestDB(t))

			for _, job := range tt.jobs {
				require.NoError(t, svc.CreateJob(ctx, job))
			}

			hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeIngest)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, hasActive)
		})
	}
}

func TestCreateAndRetrieveJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(testutils.NewTestDB(t))

	job := &models.Job{
		Type:       models.JobTypeQRCodes,
		DataParsed: &models.JobQRCodesData{BookID: pointerutil.Int(3), Force: true},
	}
	require.NoError(t, svc.CreateJob(ctx, job))
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.NotZero(t, job.ID)

	got, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	data, ok := got.DataParsed.(*models.JobQRCodesData)
	require.True(t, ok)
	require.NotNil(t, data.BookID)
	assert.Equal(t, 3, *data.BookID)
	assert.True(t, data.Force)

	_, err = svc.RetrieveJob(ctx, RetrieveJobOptions{ID: pointerutil.Int(999)})
	assert.Equal(t, errcodes.NotFound("Job"), err)
}

func TestListJobs_Filters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(testutils.NewTestDB(t))

	pending := &models.Job{Type: models.JobTypeIngest, DataParsed: &models.JobIngestData{Source: "/a"}}
	require.NoError(t, svc.CreateJob(ctx, pending))
	claimed := &models.Job{Type: models.JobTypeQRCodes, DataParsed: &models.JobQRCodesData{}, ProcessID: pointerutil.String("proc-1")}
	require.NoError(t, svc.CreateJob(ctx, claimed))
	done := &models.Job{Type: models.JobTypeQRCodes, Status: models.JobStatusCompleted, DataParsed: &models.JobQRCodesData{}}
	require.NoError(t, svc.CreateJob(ctx, done))

	jobs, total, err := svc.ListJobsWithTotal(ctx, ListJobsOptions{Limit: pointerutil.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, pending.ID, jobs[0].ID)

	jobs, err = svc.ListJobs(ctx, ListJobsOptions{Type: pointerutil.String(models.JobTypeQRCodes)})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = svc.ListJobs(ctx, ListJobsOptions{
		Statuses:           []string{models.JobStatusPending},
		ProcessIDToExclude: pointerutil.String("proc-1"),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pending.ID, jobs[0].ID)
}

func TestUpdateJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(testutils.NewTestDB(t))

	job := &models.Job{Type: models.JobTypeIngest, DataParsed: &models.JobIngestData{Source: "/a"}}
	require.NoError(t, svc.CreateJob(ctx, job))

	job.Status = models.JobStatusInProgress
	require.NoError(t, svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"status"}}))

	got, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, got.Status)

	missing := &models.Job{ID: 999, Status: models.JobStatusFailed}
	err = svc.UpdateJob(ctx, missing, UpdateJobOptions{Columns: []string{"status"}})
	assert.Equal(t, errcodes.NotFound("Job"), err)
}

func TestNewJob(t *testing.T) {
	t.Parallel()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	sources, err := filesystem.NewService(dir)
	require.NoError(t, err)

	job, err := newJob(CreateJobPayload{Type: models.JobTypeIngest, Data: map[string]interface{}{"source": dir, "overwrite": true}}, sources)
	require.NoError(t, err)
	data := job.DataParsed.(*models.JobIngestData)
	assert.Equal(t, dir, data.Source)
	assert.True(t, data.Overwrite)

	_, err = newJob(CreateJobPayload{Type: models.JobTypeIngest}, sources)
	var errResp *errcodes.Error
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, errResp.HTTPCode)

	_, err = newJob(CreateJobPayload{Type: models.JobTypeIngest, Data: map[string]interface{}{"source": dir + "/missing"}}, sources)
	require.ErrorAs(t, err, &errResp)
	assert.Contains(t, errResp.Message, "does not exist")

	job, err = newJob(CreateJobPayload{Type: models.JobTypeQRCodes}, sources)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestNewJob_SourceOutsideImportRoot(t *testing.T) {
	t.Parallel()
	parent, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(parent, "imports")
	require.NoError(t, os.Mkdir(root, 0o755))
	sources, err := filesystem.NewService(root)
	require.NoError(t, err)

	outside := filepath.Join(parent, "private.zip")
	require.NoError(t, os.WriteFile(outside, nil, 0o644))
	require.NoError(t, os.Symlink(parent, filepath.Join(root, "escape")))

	for _, source := range []string{
		outside,
		parent,
		filepath.Join(root, "..", "private.zip"),
		filepath.Join(root, "escape", "private.zip"),
		"/etc",
	} {
		_, err := newJob(CreateJobPayload{Type: models.JobTypeIngest, Data: map[string]interface{}{"source": source}}, sources)
		var errResp *errcodes.Error
		require.ErrorAs(t, err, &errResp, source)
		assert.Equal(t, http.StatusForbidden, errResp.HTTPCode, source)
	}

	inside := filepath.Join(root, "batch.zip")
	require.NoError(t, os.WriteFile(inside, nil, 0o644))
	_, err = newJob(CreateJobPayload{Type: models.JobTypeIngest, Data: map[string]interface{}{"source": inside}}, sources)
	assert.NoError(t, err)
}
