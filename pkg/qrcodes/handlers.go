package qrcodes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	qrService *Service
	store     mediastore.Store
}

// CopyInfo is what scanning a copy's code shows.
type CopyInfo struct {
	ID               int              `json:"id"`
	Payload          string           `json:"payload"`
	State            models.CopyState `json:"state"`
	BookID           int              `json:"book_id"`
	BookTitle        string           `json:"book_title"`
	BookAuthor       string           `json:"book_author"`
	BorrowerUsername *string          `json:"borrower_username"`
	BorrowedDate     *string          `json:"borrowed_date"`
	DueDate          *string          `json:"due_date"`
	HasQRCode        bool             `json:"has_qr_code"`
}

func newCopyInfo(bc *models.BookCopy) CopyInfo {
	info := CopyInfo{
		ID:        bc.ID,
		Payload:   Payload(bc.ID),
		State:     bc.State(),
		BookID:    bc.BookID,
		HasQRCode: bc.QRCode != nil,
	}
	if bc.Book != nil {
		info.BookTitle = bc.Book.Title
		info.BookAuthor = bc.Book.Author
	}
	if bc.Borrower != nil {
		info.BorrowerUsername = &bc.Borrower.Username
	}
	if bc.BorrowedDate != nil {
		s := models.DateString(*bc.BorrowedDate)
		info.BorrowedDate = &s
	}
	if bc.DueDate != nil {
		s := models.DateString(*bc.DueDate)
		info.DueDate = &s
	}
	return info
}

func copyID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, errcodes.NotFound("Book copy")
	}
	return id, nil
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := copyID(c)
	if err != nil {
		return err
	}

	bc, err := h.qrService.RetrieveCopy(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newCopyInfo(bc)))
}

// scan resolves a scanned "bookcopy:<id>" payload.
func (h *handler) scan(c echo.Context) error {
	ctx := c.Request().Context()

	params := ScanQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	id, err := ParsePayload(params.Code)
	if err != nil {
		return errcodes.ValidationError(`"code" is not a book copy QR code`)
	}

	bc, err := h.qrService.RetrieveCopy(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newCopyInfo(bc)))
}

// image serves the printable code, issuing it first if the copy has none.
func (h *handler) image(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := copyID(c)
	if err != nil {
		return err
	}

	bc, err := h.qrService.RetrieveCopy(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	h.qrService.Ensure(ctx, bc)
	if bc.QRCode == nil {
		return errcodes.NotFound("QR code")
	}

	return mediastore.Serve(c, h.store, *bc.QRCode, "QR code")
}

func (h *handler) regenerate(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := copyID(c)
	if err != nil {
		return err
	}

	bc, result, err := h.qrService.IssueByID(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Result Result   `json:"result"`
		Copy   CopyInfo `json:"copy"`
	}{result, newCopyInfo(bc)}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
