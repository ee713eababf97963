package joblogs

import (
	"context"
	"runtime/debug"

	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const maxDataValueLen = 1024

// Logger is what batch operations report their progress to. When they run as
// a job it's a *JobLogger, from the CLI it's a ConsoleLogger.
type Logger interface {
	Info(msg string, data logger.Data)
	Warn(msg string, data logger.Data)
	Error(msg string, err error, data logger.Data)
}

// ConsoleLogger only writes to the process log.
type ConsoleLogger struct {
	log logger.Logger
}

func NewConsoleLogger(log logger.Logger) *ConsoleLogger {
	return &ConsoleLogger{log: log}
}

func (l *ConsoleLogger) Info(msg string, data logger.Data) { l.log.Info(msg, data) }
func (l *ConsoleLogger) Warn(msg string, data logger.Data) { l.log.Warn(msg, data) }

func (l *ConsoleLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
}

// JobLogger writes to the process log and persists every line as a job log.
type JobLogger struct {
	jobID   int
	service *Service
	log     logger.Logger
	ctx     context.Context
}

func (svc *Service) NewJobLogger(ctx context.Context, jobID int, log logger.Logger) *JobLogger {
	return &JobLogger{
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
		ctx:     ctx,
	}
}

func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.persist(models.JobLogLevelInfo, msg, data, nil)
}

func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.persist(models.JobLogLevelWarn, msg, data, nil)
}

func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	data = withError(data, err)
	l.persist(models.JobLogLevelError, msg, data, nil)
}

// Fatal is for panics and failures that end the job. It records the stack.
func (l *JobLogger) Fatal(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	data = withError(data, err)
	stack := string(debug.Stack())
	l.persist(models.JobLogLevelFatal, msg, data, &stack)
}

func withError(data logger.Data, err error) logger.Data {
	if err == nil {
		return data
	}
	out := logger.Data{"error": err.Error()}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func (l *JobLogger) persist(level, msg string, data logger.Data, stackTrace *string) {
	var dataStr *string
	if len(data) > 0 {
		truncated := make(logger.Data, len(data))
		for k, v := range data {
			if s, ok := v.(string); ok && len(s) > maxDataValueLen {
				v = truncateMiddle(s, maxDataValueLen)
			}
			truncated[k] = v
		}
		if b, err := json.Marshal(truncated); err == nil {
			s := string(b)
			dataStr = &s
		}
	}

	err := l.service.CreateJobLog(l.ctx, &models.JobLog{
		JobID:      l.jobID,
		Level:      level,
		Message:    msg,
		Data:       dataStr,
		StackTrace: stackTrace,
	})
	if err != nil {
		l.log.Err(err).Warn("failed to persist job log")
	}
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
