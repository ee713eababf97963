package books

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/fileutils"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
)

const coverFormField = "cover"

type handler struct {
	bookService *Service
	store       mediastore.Store
}

// newBookResponse computes the lending state from the loaded copies and drops
// them from the payload. Copies are listed separately for admins.
func newBookResponse(book *models.Book, user *models.User) BookResponse {
	resp := BookResponse{
		Book:                 book,
		AvailableCopiesCount: book.AvailableCopies(),
	}
	if user != nil {
		for _, bc := range book.Copies {
			if bc.BorrowerID != nil && *bc.BorrowerID == user.ID {
				resp.UserHasBorrowed = true
				break
			}
		}
	}
	book.Copies = nil
	return resp
}

func bookID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, errcodes.NotFound("Book")
	}
	return id, nil
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newBookResponse(book, auth.UserFromContext(c))))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, ListBooksOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		Search: params.Q,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	user := auth.UserFromContext(c)
	items := make([]BookResponse, 0, len(books))
	for _, book := range books {
		items = append(items, newBookResponse(book, user))
	}

	resp := struct {
		Books []BookResponse `json:"books"`
		Total int            `json:"total"`
	}{items, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book := &models.Book{
		Title:          params.Title,
		Author:         params.Author,
		Description:    params.Description,
		Keywords:       params.Keywords,
		RecommendedAge: params.RecommendedAge,
		CopiesCount:    models.DefaultCopiesCount,
	}
	if params.CopiesCount != nil {
		book.CopiesCount = *params.CopiesCount
	}

	if fh := params.FormFiles[coverFormField]; fh != nil {
		if err := h.setCoverFromUpload(c, book, fh); err != nil {
			return err
		}
	}

	if err := h.bookService.CreateBook(ctx, book); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, newBookResponse(book, auth.UserFromContext(c))))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateBookOptions{Columns: []string{}}

	if params.Title != nil && *params.Title != book.Title {
		book.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.Author != nil && *params.Author != book.Author {
		book.Author = *params.Author
		opts.Columns = append(opts.Columns, "author")
	}
	if params.Description != nil && *params.Description != book.Description {
		book.Description = *params.Description
		opts.Columns = append(opts.Columns, "description")
	}
	if params.Keywords != nil {
		book.Keywords = params.Keywords
		opts.Columns = append(opts.Columns, "keywords")
	}
	if params.RecommendedAge != nil {
		book.RecommendedAge = params.RecommendedAge
		opts.Columns = append(opts.Columns, "recommended_age")
	}
	if params.CopiesCount != nil && *params.CopiesCount != book.CopiesCount {
		book.CopiesCount = *params.CopiesCount
		opts.Columns = append(opts.Columns, "copies_count")
	}
	if fh := params.FormFiles[coverFormField]; fh != nil {
		if err := h.setCoverFromUpload(c, book, fh); err != nil {
			return err
		}
		opts.Columns = append(opts.Columns, "cover_image")
	}

	if err := h.bookService.UpdateBook(ctx, book, opts); err != nil {
		return errors.WithStack(err)
	}

	book, err = h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newBookResponse(book, auth.UserFromContext(c))))
}

func (h *handler) setCoverFromUpload(c echo.Context, book *models.Book, fh *multipart.FileHeader) error {
	if !fileutils.HasImageExtension(fh.Filename) {
		return errcodes.ValidationError(`"cover" must be a jpg, jpeg, png or webp image`)
	}
	f, err := fh.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errors.WithStack(err)
	}
	return h.bookService.SetCover(c.Request().Context(), book, fh.Filename, data)
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	if err := h.bookService.DeleteBook(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) cover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}
	if book.CoverImage == nil {
		return errcodes.NotFound("Cover")
	}

	return mediastore.Serve(c, h.store, *book.CoverImage, "Cover")
}

func (h *handler) images(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book.Images))
}

// copies is the per-book QR management listing.
func (h *handler) copies(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	if _, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	copies, err := h.bookService.ListCopies(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	withCode := 0
	for _, bc := range copies {
		if bc.QRCode != nil {
			withCode++
		}
	}

	resp := struct {
		Copies      []*models.BookCopy `json:"copies"`
		Total       int                `json:"total"`
		WithCode    int                `json:"with_code"`
		WithoutCode int                `json:"without_code"`
	}{copies, len(copies), withCode, len(copies) - withCode}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) image(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Image")
	}

	img, err := h.bookService.RetrieveImage(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return mediastore.Serve(c, h.store, img.Image, "Image")
}
