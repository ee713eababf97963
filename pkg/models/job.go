package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeIngest  = "ingest"
	JobTypeQRCodes = "qrcodes"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          int         `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Type        string      `bun:",nullzero" json:"type"`
	Status      string      `bun:",nullzero" json:"status"`
	Data        string      `bun:",nullzero" json:"-"`
	DataParsed  interface{} `bun:"-" json:"data"`
	Progress    int         `json:"progress"`
	ProcessID   *string     `json:"process_id,omitempty"`
	CreatedByID *int        `json:"created_by_id,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeIngest:
		job.DataParsed = &JobIngestData{}
	case JobTypeQRCodes:
		job.DataParsed = &JobQRCodesData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// JobIngestData imports books from a directory or ZIP archive on the server.
type JobIngestData struct {
	Source    string `json:"source" validate:"required"`
	Overwrite bool   `json:"overwrite"`
}

// JobQRCodesData issues QR codes for copies, optionally for one book only.
type JobQRCodesData struct {
	BookID *int `json:"book_id,omitempty"`
	Force  bool `json:"force"`
}
