package loans

import (
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/models"
)

// RegisterRoutes adds borrow and return to the books group and the caller's
// borrowings at /borrowings.
func RegisterRoutes(e *echo.Echo, booksGroup *echo.Group, loanService *Service, authMiddleware *auth.Middleware) {
	h := &handler{
		loanService: loanService,
	}

	canBorrow := authMiddleware.RequirePermission(models.ResourceLoans, models.OperationWrite)

	booksGroup.POST("/:id/borrow", h.borrow, authMiddleware.Authenticate, canBorrow)
	booksGroup.POST("/:id/return", h.giveBack, authMiddleware.Authenticate, canBorrow)
	e.GET("/borrowings", h.borrowings, authMiddleware.Authenticate)
}
