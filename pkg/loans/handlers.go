package loans

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/binder"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/pkg/errors"
)

type handler struct {
	loanService *Service
}

func (h *handler) borrow(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	c.Set(binder.DisallowEmptyBody, false)
	params := BorrowPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	result, err := h.loanService.Borrow(ctx, BorrowOptions{
		BookID: id,
		User:   auth.UserFromContext(c),
		Days:   params.Days,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, result))
}

func (h *handler) giveBack(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	if err := h.loanService.Return(ctx, id, auth.UserFromContext(c)); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]bool{"success": true}))
}

func (h *handler) borrowings(c echo.Context) error {
	ctx := c.Request().Context()

	borrowings, err := h.loanService.ListBorrowings(ctx, auth.UserFromContext(c), time.Now())
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Borrowings []*Borrowing `json:"borrowings"`
		Total      int          `json:"total"`
	}{borrowings, len(borrowings)}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
