package jobs

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers job routes on a group that already
// authenticates the caller. Ingest sources are checked with sources.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, sources SourceChecker, authMiddleware *auth.Middleware) {
	h := &handler{
		jobService: NewService(db),
		sources:    sources,
	}

	g.GET("", h.list, authMiddleware.RequirePermission(models.ResourceJobs, models.OperationRead))
	g.GET("/:id", h.retrieve, authMiddleware.RequirePermission(models.ResourceJobs, models.OperationRead))
	g.POST("", h.create, authMiddleware.RequirePermission(models.ResourceJobs, models.OperationWrite))
}
