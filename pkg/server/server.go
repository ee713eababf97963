package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/binder"
	"github.com/lendshelf/lendshelf/pkg/books"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/filesystem"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/jobs"
	"github.com/lendshelf/lendshelf/pkg/loans"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/lendshelf/lendshelf/pkg/users"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, svcs *Services) (*http.Server, error) {
	e, err := newEcho(cfg, db, svcs)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, svcs *Services) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	authMiddleware := auth.RegisterRoutes(e, db, cfg.JWTSecret)

	// Anyone may browse the catalog. Signed in callers also see which books
	// they hold.
	booksGroup := e.Group("/books")
	booksGroup.Use(authMiddleware.AuthenticateOptional)
	books.RegisterRoutesWithGroup(booksGroup, svcs.Books, svcs.Store, authMiddleware)
	books.RegisterImageRoutes(e, svcs.Books, svcs.Store)
	loans.RegisterRoutes(e, booksGroup, svcs.Loans, authMiddleware)

	qrcodes.RegisterRoutes(e, svcs.QR, svcs.Store, authMiddleware)

	filesystemService, err := filesystem.NewService(cfg.IngestRoot)
	if err != nil {
		return nil, err
	}
	filesystem.RegisterRoutes(e, filesystemService, authMiddleware)

	jobsGroup := e.Group("/jobs")
	jobsGroup.Use(authMiddleware.Authenticate)
	jobsGroup.Use(authMiddleware.RequirePermission(models.ResourceJobs, models.OperationRead))
	jobs.RegisterRoutesWithGroup(jobsGroup, db, filesystemService, authMiddleware)
	joblogs.RegisterRoutes(jobsGroup, db)

	users.RegisterRoutes(e, svcs.Users, authMiddleware)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
