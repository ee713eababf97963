package errcodes

import (
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

// Response is the JSON body of every failed request.
type Response struct {
	Error ResponseError `json:"error"`
}

type ResponseError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is the echo error handler. Errors that are neither an *Error nor an
// *echo.HTTPError are reported as internal server errors and logged.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)
	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}
	if c.Response().Committed {
		log.Err(err).Warn("error after response was written")
		return
	}

	resp := toResponse(err)
	if resp.Error.StatusCode >= http.StatusInternalServerError {
		log.Err(err).Error("server error")
	}

	if err := c.JSON(resp.Error.StatusCode, resp); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func toResponse(err error) Response {
	var e *Error
	if errors.As(err, &e) {
		return Response{ResponseError{Code: e.Code, Message: e.Message, StatusCode: e.HTTPCode}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		return Response{ResponseError{Code: strcase.ToSnake(msg), Message: msg, StatusCode: he.Code}}
	}

	return Response{ResponseError{
		Code:       "internal_server_error",
		Message:    "Internal Server Error",
		StatusCode: http.StatusInternalServerError,
	}}
}
