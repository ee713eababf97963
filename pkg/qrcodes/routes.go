package qrcodes

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
)

// RegisterRoutes adds /copies and /scan. Reading a copy is open to anyone
// holding its code; regenerating needs books:write.
func RegisterRoutes(e *echo.Echo, qrService *Service, store mediastore.Store, authMiddleware *auth.Middleware) {
	h := &handler{
		qrService: qrService,
		store:     store,
	}

	copies := e.Group("/copies")
	copies.GET("/:id", h.retrieve)
	copies.GET("/:id/qrcode", h.image)
	copies.POST("/:id/qrcode", h.regenerate, authMiddleware.Authenticate, authMiddleware.RequirePermission(models.ResourceBooks, models.OperationWrite))

	e.GET("/scan", h.scan)
}
