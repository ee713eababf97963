package users

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/models"
)

func RegisterRoutes(e *echo.Echo, userService *Service, authMiddleware *auth.Middleware) {
	h := &handler{userService: userService}

	g := e.Group("/users")
	g.Use(authMiddleware.Authenticate)

	g.GET("", h.list, authMiddleware.RequirePermission(models.ResourceUsers, models.OperationRead))
	g.GET("/:id", h.retrieve, authMiddleware.RequirePermission(models.ResourceUsers, models.OperationRead))
	g.POST("/:id", h.update, authMiddleware.RequirePermission(models.ResourceUsers, models.OperationWrite))
	g.DELETE("/:id", h.delete, authMiddleware.RequirePermission(models.ResourceUsers, models.OperationWrite))

	// Checked in the handler since users may reset their own password.
	g.POST("/:id/reset-password", h.resetPassword)
}
