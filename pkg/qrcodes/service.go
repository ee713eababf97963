package qrcodes

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Result is the outcome of issuing a code for one copy.
type Result string

const (
	ResultIssued      Result = "issued"
	ResultSkipped     Result = "skipped"
	ResultUnavailable Result = "unavailable"
	ResultFailed      Result = "failed"
)

// batchProgressEvery is how many copies a batch processes between progress
// log lines.
const batchProgressEvery = 10

type Service struct {
	db       *bun.DB
	store    mediastore.Store
	renderer Renderer
}

func NewService(db *bun.DB, store mediastore.Store, renderer Renderer) *Service {
	return &Service{db: db, store: store, renderer: renderer}
}

// Available reports whether codes can be rendered at all.
func (svc *Service) Available() bool {
	return svc.renderer != nil && svc.renderer.Available()
}

// Issue renders a code for the copy, stores the image and records its key on
// the copy. An existing code is replaced.
func (svc *Service) Issue(ctx context.Context, bc *models.BookCopy) (Result, error) {
	if !svc.Available() {
		return ResultUnavailable, nil
	}

	png, err := svc.renderer.Render(Payload(bc.ID))
	if err != nil {
		return ResultFailed, err
	}

	key := mediastore.QRCodeKey(bc.ID)
	if err := svc.store.Put(ctx, key, bytes.NewReader(png)); err != nil {
		return ResultFailed, errors.WithStack(err)
	}

	bc.QRCode = &key
	bc.UpdatedAt = time.Now()
	_, err = svc.db.NewUpdate().
		Model(bc).
		Column("qr_code", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return ResultFailed, errors.WithStack(err)
	}
	return ResultIssued, nil
}

// Ensure issues a code for a copy that has none. Failures are logged and never
// returned, so callers saving a copy don't fail because of the code.
func (svc *Service) Ensure(ctx context.Context, bc *models.BookCopy) Result {
	if bc.QRCode != nil {
		return ResultSkipped
	}
	result, err := svc.Issue(ctx, bc)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to issue qr code", logger.Data{"copy_id": bc.ID})
	}
	return result
}

// RetrieveCopy loads a copy with its book and borrower.
func (svc *Service) RetrieveCopy(ctx context.Context, id int) (*models.BookCopy, error) {
	bc := &models.BookCopy{}
	err := svc.db.NewSelect().
		Model(bc).
		Relation("Book").
		Relation("Borrower").
		Where("bc.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book copy")
		}
		return nil, errors.WithStack(err)
	}
	return bc, nil
}

// IssueByID regenerates the code of one copy.
func (svc *Service) IssueByID(ctx context.Context, id int) (*models.BookCopy, Result, error) {
	bc, err := svc.RetrieveCopy(ctx, id)
	if err != nil {
		return nil, ResultFailed, err
	}
	result, err := svc.Issue(ctx, bc)
	return bc, result, err
}

type BatchOptions struct {
	BookID *int
	// Force regenerates codes for copies that already have one.
	Force bool
}

type BatchResult struct {
	Total       int `json:"total"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Unavailable int `json:"unavailable"`
}

// Coverage counts copies with and without a code.
type Coverage struct {
	Total       int `json:"total"`
	WithCode    int `json:"with_code"`
	WithoutCode int `json:"without_code"`
}

func (svc *Service) Coverage(ctx context.Context, bookID *int) (*Coverage, error) {
	q := svc.db.NewSelect().Model((*models.BookCopy)(nil))
	if bookID != nil {
		q = q.Where("bc.book_id = ?", *bookID)
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	q = svc.db.NewSelect().Model((*models.BookCopy)(nil)).Where("bc.qr_code IS NOT NULL")
	if bookID != nil {
		q = q.Where("bc.book_id = ?", *bookID)
	}
	withCode, err := q.Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Coverage{Total: total, WithCode: withCode, WithoutCode: total - withCode}, nil
}

// GenerateBatch issues codes for every selected copy in id order. A failing
// copy is logged and counted and the batch moves on.
func (svc *Service) GenerateBatch(ctx context.Context, opts BatchOptions, log joblogs.Logger) (*BatchResult, error) {
	copies := []*models.BookCopy{}
	q := svc.db.NewSelect().
		Model(&copies).
		Order("bc.id ASC")
	if opts.BookID != nil {
		q = q.Where("bc.book_id = ?", *opts.BookID)
	}
	if !opts.Force {
		q = q.Where("bc.qr_code IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	result := &BatchResult{Total: len(copies)}
	log.Info("generating qr codes", logger.Data{"copies": len(copies), "force": opts.Force})
	if !svc.Available() && len(copies) > 0 {
		log.Warn("qr code rendering is unavailable", nil)
	}

	for i, bc := range copies {
		if err := ctx.Err(); err != nil {
			return result, errors.WithStack(err)
		}

		res, err := svc.Issue(ctx, bc)
		switch res {
		case ResultIssued:
			result.Succeeded++
		case ResultUnavailable:
			result.Unavailable++
		default:
			result.Failed++
			log.Error("failed to generate qr code", err, logger.Data{"copy_id": bc.ID, "book_id": bc.BookID})
		}

		if done := i + 1; done%batchProgressEvery == 0 && done < len(copies) {
			log.Info("qr code progress", logger.Data{"done": done, "total": len(copies)})
		}
	}

	coverage, err := svc.Coverage(ctx, opts.BookID)
	if err != nil {
		return result, err
	}
	log.Info("finished generating qr codes", logger.Data{
		"total":        result.Total,
		"succeeded":    result.Succeeded,
		"failed":       result.Failed,
		"unavailable":  result.Unavailable,
		"copies":       coverage.Total,
		"with_code":    coverage.WithCode,
		"without_code": coverage.WithoutCode,
	})

	return result, nil
}
