package filesystem

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/models"
)

// RegisterRoutes adds GET /filesystem/browse for admins picking the source of
// an ingest job.
func RegisterRoutes(e *echo.Echo, filesystemService *Service, authMiddleware *auth.Middleware) {
	h := &handler{
		filesystemService: filesystemService,
	}

	e.GET("/filesystem/browse", h.browse,
		authMiddleware.Authenticate,
		authMiddleware.RequirePermission(models.ResourceJobs, models.OperationWrite))
}
