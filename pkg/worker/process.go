package worker

import (
	"context"

	"github.com/lendshelf/lendshelf/pkg/ingest"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// ProcessIngestJob imports the job's source. Books that fail are in the job
// logs and don't fail the job.
func (w *Worker) ProcessIngestJob(ctx context.Context, job *models.Job, log joblogs.Logger) error {
	data, ok := job.DataParsed.(*models.JobIngestData)
	if !ok {
		return errors.Errorf("unexpected data for ingest job: %T", job.DataParsed)
	}

	report, err := w.importer.Import(ctx, data.Source, ingest.Options{Overwrite: data.Overwrite}, log)
	if err != nil {
		return err
	}
	if report.Failed() > 0 {
		failed := make([]string, 0, report.Failed())
		for _, res := range report.Results {
			if res.Err != nil {
				failed = append(failed, res.Title)
			}
		}
		log.Warn("some books were not imported", logger.Data{"titles": failed})
	}
	return nil
}

func (w *Worker) ProcessQRCodesJob(ctx context.Context, job *models.Job, log joblogs.Logger) error {
	data, ok := job.DataParsed.(*models.JobQRCodesData)
	if !ok {
		return errors.Errorf("unexpected data for qrcodes job: %T", job.DataParsed)
	}

	_, err := w.qrService.GenerateBatch(ctx, qrcodes.BatchOptions{BookID: data.BookID, Force: data.Force}, log)
	return err
}
