package books

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
)

// RegisterRoutesWithGroup registers book routes on a group that optionally
// authenticates the caller.
func RegisterRoutesWithGroup(g *echo.Group, bookService *Service, store mediastore.Store, authMiddleware *auth.Middleware) {
	h := &handler{
		bookService: bookService,
		store:       store,
	}

	canWrite := authMiddleware.RequirePermission(models.ResourceBooks, models.OperationWrite)

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/cover", h.cover)
	g.GET("/:id/images", h.images)
	g.POST("", h.create, canWrite)
	g.POST("/:id", h.update, canWrite)
	g.DELETE("/:id", h.delete, canWrite)
	g.GET("/:id/copies", h.copies, canWrite)
}

// RegisterImageRoutes serves gallery images by id.
func RegisterImageRoutes(e *echo.Echo, bookService *Service, store mediastore.Store) {
	h := &handler{
		bookService: bookService,
		store:       store,
	}

	e.GET("/images/:id", h.image)
}
