package server

import (
	"context"

	"github.com/lendshelf/lendshelf/pkg/books"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/covers"
	"github.com/lendshelf/lendshelf/pkg/loans"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/lendshelf/lendshelf/pkg/users"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Services are the long-lived services shared by the HTTP server, the worker
// and the CLI.
type Services struct {
	Store mediastore.Store
	Books *books.Service
	QR    *qrcodes.Service
	Loans *loans.Service
	Users *users.Service
}

func NewServices(ctx context.Context, cfg *config.Config, db *bun.DB) (*Services, error) {
	log := logger.FromContext(ctx)

	store, err := mediastore.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "media storage")
	}

	// Books without a cover keep working when covers can't be rendered.
	var coverRenderer covers.Renderer
	textRenderer, err := covers.NewTextRenderer(cfg)
	if err != nil {
		log.Err(err).Warn("cover rendering disabled")
	} else {
		coverRenderer = textRenderer
	}

	qrRenderer := qrcodes.NewRenderer(cfg)
	if !qrRenderer.Available() {
		log.Warn("qr code rendering disabled")
	}

	qrService := qrcodes.NewService(db, store, qrRenderer)
	loanService := loans.NewService(db, qrService, cfg.DefaultLoanDays)

	return &Services{
		Store: store,
		Books: books.NewService(db, cfg, store, coverRenderer, qrService),
		QR:    qrService,
		Loans: loanService,
		Users: users.NewService(db, loanService),
	}, nil
}
