package books

import (
	"bytes"
	"context"
	"database/sql"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/covers"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/fileutils"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID    *int
	Title *string
}

type ListBooksOptions struct {
	Limit  *int
	Offset *int
	// Search matches title, author and keywords.
	Search *string

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

// GalleryImage is one image to store in a book's gallery. Filename is its path
// inside the gallery directory.
type GalleryImage struct {
	Filename string
	Caption  string
	Order    int
	Data     []byte
}

type Service struct {
	db            *bun.DB
	store         mediastore.Store
	coverRenderer covers.Renderer
	qrService     *qrcodes.Service
	imageMaxWidth int
}

// NewService builds the catalog service. coverRenderer may be nil, in which
// case books without a cover stay without one.
func NewService(db *bun.DB, cfg *config.Config, store mediastore.Store, coverRenderer covers.Renderer, qrService *qrcodes.Service) *Service {
	return &Service{
		db:            db,
		store:         store,
		coverRenderer: coverRenderer,
		qrService:     qrService,
		imageMaxWidth: cfg.ImageMaxWidth,
	}
}

// CreateBook inserts the book and runs the save hooks: a cover is rendered
// when it has none and its copies are reconciled.
func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	if err := svc.insertBook(ctx, book); err != nil {
		return err
	}
	return svc.afterSave(ctx, book)
}

func (svc *Service) insertBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt
	if book.Author == "" {
		book.Author = models.UnknownAuthor
	}

	exists, err := svc.db.NewSelect().
		Model((*models.Book)(nil)).
		Where("b.title = ?", book.Title).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return duplicateTitle(book.Title)
	}

	_, err = svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return duplicateTitle(book.Title)
		}
		return errors.WithStack(err)
	}
	return nil
}

func duplicateTitle(title string) error {
	return errcodes.Conflict("A book titled " + title + " already exists.")
}

// FindOrCreateBook returns the book with the given title, or inserts the given
// one when there is none. A found book is returned untouched. The insert skips
// the save hooks since the caller is expected to save the book afterwards.
func (svc *Service) FindOrCreateBook(ctx context.Context, book *models.Book) (*models.Book, bool, error) {
	existing, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Title: &book.Title})
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, errcodes.NotFound("Book")) {
		return nil, false, err
	}

	if err := svc.insertBook(ctx, book); err != nil {
		return nil, false, err
	}
	return book, true, nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		Relation("Copies", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("bc.id ASC")
		}).
		Relation("Images", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("bi.sort_order ASC", "bi.id ASC")
		})

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.Title != nil {
		q = q.Where("b.title = ?", *opts.Title)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Copies", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("bc.id ASC")
		}).
		Order("b.title ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Search != nil && *opts.Search != "" {
		pattern := "%" + *opts.Search + "%"
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("b.title LIKE ?", pattern).
				WhereOr("b.author LIKE ?", pattern).
				WhereOr("b.keywords LIKE ?", pattern)
		})
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

// UpdateBook writes the given columns and then runs the save hooks.
func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) > 0 {
		var previousCover *string
		if slices.Contains(opts.Columns, "cover_image") {
			err := svc.db.NewSelect().
				Model((*models.Book)(nil)).
				Column("cover_image").
				Where("b.id = ?", book.ID).
				Scan(ctx, &previousCover)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return errors.WithStack(err)
			}
		}

		book.UpdatedAt = time.Now()
		columns := append(slices.Clone(opts.Columns), "updated_at")

		res, err := svc.db.
			NewUpdate().
			Model(book).
			Column(columns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return duplicateTitle(book.Title)
			}
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Book")
		}

		if previousCover != nil && (book.CoverImage == nil || *book.CoverImage != *previousCover) {
			svc.deleteMedia(ctx, *previousCover)
		}
	}

	return svc.afterSave(ctx, book)
}

func (svc *Service) afterSave(ctx context.Context, book *models.Book) error {
	svc.ensureCover(ctx, book)
	_, err := svc.ReconcileCopies(ctx, book)
	return err
}

// ensureCover renders a cover for a book that has none. It never fails the
// save.
func (svc *Service) ensureCover(ctx context.Context, book *models.Book) {
	if book.CoverImage != nil {
		return
	}
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": book.ID})
	if svc.coverRenderer == nil {
		log.Debug("no cover renderer configured, leaving book without a cover")
		return
	}

	img, err := svc.coverRenderer.Render(book.Title, book.Author)
	if err != nil {
		log.Err(err).Warn("failed to render cover")
		return
	}
	data, err := covers.EncodePNG(img)
	if err != nil {
		log.Err(err).Warn("failed to encode cover")
		return
	}

	key := mediastore.CoverKey(book.Title, "png")
	if err := svc.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		log.Err(err).Warn("failed to store rendered cover")
		return
	}

	book.CoverImage = &key
	_, err = svc.db.NewUpdate().
		Model(book).
		Column("cover_image").
		WherePK().
		Exec(ctx)
	if err != nil {
		book.CoverImage = nil
		log.Err(err).Warn("failed to save rendered cover")
	}
}

// ReconcileCopies inserts copies until the book has at least CopiesCount of
// them. Existing copies are never removed. New copies get a QR code when
// rendering is available.
func (svc *Service) ReconcileCopies(ctx context.Context, book *models.Book) ([]*models.BookCopy, error) {
	existing, err := svc.db.NewSelect().
		Model((*models.BookCopy)(nil)).
		Where("bc.book_id = ?", book.ID).
		Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	missing := book.CopiesCount - existing
	if missing <= 0 {
		return nil, nil
	}

	now := time.Now()
	created := make([]*models.BookCopy, 0, missing)
	for i := 0; i < missing; i++ {
		bc := models.NewBookCopy(book.ID)
		bc.CreatedAt = now
		bc.UpdatedAt = now
		created = append(created, bc)
	}
	_, err = svc.db.NewInsert().
		Model(&created).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if svc.qrService != nil {
		for _, bc := range created {
			svc.qrService.Ensure(ctx, bc)
		}
	}

	return created, nil
}

// SetCover stores the image as the book's cover and points the book at it.
// The book itself isn't saved.
func (svc *Service) SetCover(ctx context.Context, book *models.Book, filename string, data []byte) error {
	data, err := covers.Shrink(data, svc.imageMaxWidth)
	if err != nil {
		return err
	}
	key := mediastore.CoverKey(book.Title, path.Ext(filename))
	if err := svc.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return errors.WithStack(err)
	}
	book.CoverImage = &key
	return nil
}

// ReplaceGallery deletes the book's gallery and stores the given images.
func (svc *Service) ReplaceGallery(ctx context.Context, bookID int, images []GalleryImage) ([]*models.BookImage, error) {
	old := []*models.BookImage{}
	err := svc.db.NewSelect().
		Model(&old).
		Where("bi.book_id = ?", bookID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = svc.db.NewDelete().
		Model((*models.BookImage)(nil)).
		Where("book_id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stored := make(map[string]struct{}, len(images))
	rows := make([]*models.BookImage, 0, len(images))
	now := time.Now()
	for i, img := range images {
		data, err := covers.Shrink(img.Data, svc.imageMaxWidth)
		if err != nil {
			return nil, errors.Wrapf(err, "gallery image %s", img.Filename)
		}
		key := mediastore.GalleryKey(bookID, i, img.Filename)
		if err := svc.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
			return nil, errors.WithStack(err)
		}
		stored[key] = struct{}{}
		rows = append(rows, &models.BookImage{
			CreatedAt: now,
			BookID:    bookID,
			Image:     key,
			Caption:   img.Caption,
			SortOrder: img.Order,
		})
	}

	if len(rows) > 0 {
		_, err = svc.db.NewInsert().
			Model(&rows).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	for _, img := range old {
		if _, ok := stored[img.Image]; ok {
			continue
		}
		svc.deleteMedia(ctx, img.Image)
	}

	return rows, nil
}

// GalleryCaption is the caption an image file gets: its name without the
// extension.
func GalleryCaption(filename string) string {
	return fileutils.StripExtension(path.Base(filename))
}

// DeleteBook removes the book with its copies and images, then their media.
func (svc *Service) DeleteBook(ctx context.Context, id int) error {
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return err
	}

	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.BookCopy)(nil)).
			Where("book_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.BookImage)(nil)).
			Where("book_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.Book)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if book.CoverImage != nil {
		svc.deleteMedia(ctx, *book.CoverImage)
	}
	for _, img := range book.Images {
		svc.deleteMedia(ctx, img.Image)
	}
	for _, bc := range book.Copies {
		if bc.QRCode != nil {
			svc.deleteMedia(ctx, *bc.QRCode)
		}
	}
	return nil
}

func (svc *Service) deleteMedia(ctx context.Context, key string) {
	if err := svc.store.Delete(ctx, key); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to delete media", logger.Data{"key": key})
	}
}

// ListCopies returns the book's copies with their borrowers, in id order.
func (svc *Service) ListCopies(ctx context.Context, bookID int) ([]*models.BookCopy, error) {
	copies := []*models.BookCopy{}
	err := svc.db.NewSelect().
		Model(&copies).
		Relation("Borrower").
		Where("bc.book_id = ?", bookID).
		Order("bc.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return copies, nil
}

func (svc *Service) RetrieveImage(ctx context.Context, id int) (*models.BookImage, error) {
	img := &models.BookImage{}
	err := svc.db.NewSelect().
		Model(img).
		Where("bi.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Image")
		}
		return nil, errors.WithStack(err)
	}
	return img, nil
}
