package main

import (
	"context"
	"net/http"

	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/database"
	"github.com/lendshelf/lendshelf/pkg/migrations"
	"github.com/lendshelf/lendshelf/pkg/server"
	"github.com/lendshelf/lendshelf/pkg/version"
	"github.com/lendshelf/lendshelf/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	log := logger.New()
	ctx := log.WithContext(context.Background())

	log.Info("starting lendshelf", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	svcs, err := server.NewServices(ctx, cfg, db)
	if err != nil {
		log.Err(err).Fatal("services error")
	}

	wrkr := worker.New(cfg, db, svcs.Books, svcs.QR)

	srv, err := server.New(cfg, db, svcs)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr})
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
