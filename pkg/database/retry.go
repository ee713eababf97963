package database

import (
	"context"
	"database/sql/driver"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"(5)",
	"(6)",
}

// isBusyError reports whether err is SQLite telling us another connection
// holds the lock. The drivers behind sqliteshim format these differently, so
// this matches on the message.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn until it succeeds, returns a non-busy error, or
// maxRetries retries have been spent. The delay doubles every attempt with up
// to 25% jitter.
func withRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !isBusyError(err) || attempt >= maxRetries {
			return v, err
		}

		delay := retryBaseDelay << attempt
		delay += rand.N(delay/4 + 1)
		delay = min(delay, retryMaxDelay)

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

type busyRetryConnector struct {
	driver.Connector
	maxRetries int
}

func (c *busyRetryConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &busyRetryConn{conn: conn, maxRetries: c.maxRetries}, nil
}

type busyRetryConn struct {
	conn       driver.Conn
	maxRetries int
}

func (c *busyRetryConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *busyRetryConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &busyRetryStmt{stmt: stmt, maxRetries: c.maxRetries}, nil
}

func (c *busyRetryConn) Close() error {
	return c.conn.Close()
}

func (c *busyRetryConn) Begin() (driver.Tx, error) {
	return withRetry(context.Background(), c.maxRetries, c.conn.Begin) //nolint:staticcheck // required by driver.Conn
}

func (c *busyRetryConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	b, ok := c.conn.(driver.ConnBeginTx)
	if !ok {
		return c.Begin()
	}
	return withRetry(ctx, c.maxRetries, func() (driver.Tx, error) {
		return b.BeginTx(ctx, opts)
	})
}

func (c *busyRetryConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	return withRetry(ctx, c.maxRetries, func() (driver.Result, error) {
		return e.ExecContext(ctx, query, args)
	})
}

func (c *busyRetryConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	return withRetry(ctx, c.maxRetries, func() (driver.Rows, error) {
		return q.QueryContext(ctx, query, args)
	})
}

func (c *busyRetryConn) Ping(ctx context.Context) error {
	if p, ok := c.conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *busyRetryConn) ResetSession(ctx context.Context) error {
	if r, ok := c.conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *busyRetryConn) IsValid() bool {
	if v, ok := c.conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

type busyRetryStmt struct {
	stmt       driver.Stmt
	maxRetries int
}

func (s *busyRetryStmt) Close() error  { return s.stmt.Close() }
func (s *busyRetryStmt) NumInput() int { return s.stmt.NumInput() }

func (s *busyRetryStmt) Exec(args []driver.Value) (driver.Result, error) {
	return withRetry(context.Background(), s.maxRetries, func() (driver.Result, error) {
		return s.stmt.Exec(args) //nolint:staticcheck // required by driver.Stmt
	})
}

func (s *busyRetryStmt) Query(args []driver.Value) (driver.Rows, error) {
	return withRetry(context.Background(), s.maxRetries, func() (driver.Rows, error) {
		return s.stmt.Query(args) //nolint:staticcheck // required by driver.Stmt
	})
}

func (s *busyRetryStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	e, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		return s.Exec(namedToValues(args))
	}
	return withRetry(ctx, s.maxRetries, func() (driver.Result, error) {
		return e.ExecContext(ctx, args)
	})
}

func (s *busyRetryStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		return s.Query(namedToValues(args))
	}
	return withRetry(ctx, s.maxRetries, func() (driver.Rows, error) {
		return q.QueryContext(ctx, args)
	})
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return values
}
