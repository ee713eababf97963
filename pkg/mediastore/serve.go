package mediastore

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Serve streams the object at key as the response. A missing object is a 404
// for resource.
func Serve(c echo.Context, store Store, key, resource string) error {
	obj, err := store.Open(c.Request().Context(), key)
	if err != nil {
		return errors.WithStack(Resource(err, resource))
	}
	defer obj.Body.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return errors.WithStack(c.Stream(http.StatusOK, obj.ContentType, obj.Body))
}
