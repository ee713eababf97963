package filesystem

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	filesystemService *Service
}

func (h *handler) browse(c echo.Context) error {
	params := BrowseQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	resp, err := h.filesystemService.Browse(BrowseOptions(params))
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
