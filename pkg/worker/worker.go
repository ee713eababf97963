package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lendshelf/lendshelf/pkg/books"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/ingest"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/jobs"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/uptrace/bun"
)

const defaultPollInterval = 5 * time.Second

type processFunc func(ctx context.Context, job *models.Job, log joblogs.Logger) error

type Worker struct {
	config    *config.Config
	log       logger.Logger
	processID string

	processFuncs map[string]processFunc
	pollInterval time.Duration

	jobService    *jobs.Service
	jobLogService *joblogs.Service
	importer      *ingest.Importer
	qrService     *qrcodes.Service

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, bookService *books.Service, qrService *qrcodes.Service) *Worker {
	w := &Worker{
		config:    cfg,
		log:       logger.New(),
		processID: uuid.NewString(),

		pollInterval: defaultPollInterval,

		jobService:    jobs.NewService(db),
		jobLogService: joblogs.NewService(db),
		importer:      ingest.NewImporter(bookService),
		qrService:     qrService,

		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]processFunc{
		models.JobTypeIngest:  w.ProcessIngestJob,
		models.JobTypeQRCodes: w.ProcessQRCodesJob,
	}

	return w
}

func (w *Worker) Start() {
	w.log.Info("starting worker", logger.Data{"process_id": w.processID, "processes": w.config.WorkerProcesses})
	go w.fetchJobs()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

func (w *Worker) fetchJobs() {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.shutdown:
			// Stop adding jobs to the queue.
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			job, err := w.claimNext(context.Background())
			if err != nil {
				w.log.Err(err).Error("claim job error")
			}
			if job != nil {
				select {
				case w.queue <- job:
				case <-w.shutdown:
					// The claim is dropped. Another process will pick the
					// job up since it's still in progress under our id.
					w.doneFetching <- struct{}{}
					return
				}
			}
			timer.Reset(w.pollInterval)
		}
	}
}

// claimNext returns the oldest job this process doesn't hold yet, claimed for
// this process. Jobs left in progress by another process id belong to a
// process that went away and are picked up again.
func (w *Worker) claimNext(ctx context.Context) (*models.Job, error) {
	candidates, err := w.jobService.ListJobs(ctx, jobs.ListJobsOptions{
		Limit:              pointerutil.Int(1),
		Statuses:           []string{models.JobStatusPending, models.JobStatusInProgress},
		ProcessIDToExclude: &w.processID,
	})
	if err != nil {
		return nil, err
	}
	for _, job := range candidates {
		ok, err := w.jobService.ClaimJob(ctx, job, w.processID)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}
	}
	return nil, nil
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.processJob(job)
		}
	}
}

// processJob runs a claimed job to completion and records the final status.
func (w *Worker) processJob(job *models.Job) {
	log := w.log.ID(uuid.NewString()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": w.processID})
	ctx := log.WithContext(context.Background())
	jobLog := w.jobLogService.NewJobLogger(ctx, job.ID, log)

	err := w.run(ctx, job, jobLog)
	if err != nil {
		jobLog.Fatal("job failed", err, nil)
		job.Status = models.JobStatusFailed
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
	}

	err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "progress"},
	})
	if err != nil {
		log.Err(err).Error("update job error")
	}
}

func (w *Worker) run(ctx context.Context, job *models.Job, jobLog joblogs.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	fn, ok := w.processFuncs[job.Type]
	if !ok {
		return errors.Errorf("no process function for job type %q", job.Type)
	}
	return fn(ctx, job, jobLog)
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}
