package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type key int

const ctxKey key = 0

// WithLogging enables query logging for everything run with the returned
// context. It only has an effect when the database was opened with
// DatabaseDebug set.
func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type queryLogger struct {
	log logger.Logger
}

func (*queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q *queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if enabled, _ := ctx.Value(ctxKey).(bool); !enabled {
		return
	}
	data := logger.Data{"duration_ms": time.Since(event.StartTime).Milliseconds()}
	if event.Err != nil {
		data["error"] = event.Err.Error()
	}
	q.log.Debug(event.Query, data)
}

type connectorOpener interface {
	OpenConnector(name string) (driver.Connector, error)
}

// New opens the SQLite database at cfg.DatabaseFilePath. Every connection is
// wrapped so that statements hitting SQLITE_BUSY are retried with backoff, and
// the pool is limited to a single connection so writers are serialized.
func New(cfg *config.Config) (*bun.DB, error) {
	opener, ok := sqliteshim.Driver().(connectorOpener)
	if !ok {
		return nil, errors.New("sqlite driver does not support OpenConnector")
	}
	connector, err := opener.OpenConnector(cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sqldb := sql.OpenDB(&busyRetryConnector{Connector: connector, maxRetries: cfg.DatabaseMaxRetries})
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if cfg.DatabaseDebug {
		db.AddQueryHook(&queryLogger{logger.NewWithLevel("debug")})
	}

	if err := ping(db, cfg.DatabaseConnectRetryCount, cfg.DatabaseConnectRetryDelay); err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.DatabaseBusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, errors.Wrapf(err, "failed to run %q", pragma)
		}
	}

	return db, nil
}

func ping(db *bun.DB, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if _, err = db.Exec("SELECT 1"); err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return errors.Wrap(err, "failed to connect to database")
}
