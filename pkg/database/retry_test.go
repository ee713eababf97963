package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	busy := []string{
		"database is locked",
		"database table is locked (262)",
		"SQLITE_BUSY: cannot start a transaction within a transaction",
		"SQLITE_LOCKED",
		"sqlite3: database is locked (5)",
		"(6) database table is locked",
	}
	for _, msg := range busy {
		assert.True(t, isBusyError(errors.New(msg)), msg)
	}

	notBusy := []string{
		"UNIQUE constraint failed: users.username",
		"no such table: loans",
		"connection refused",
	}
	for _, msg := range notBusy {
		assert.False(t, isBusyError(errors.New(msg)), msg)
	}

	assert.False(t, isBusyError(nil))
}

func TestWithRetry(t *testing.T) {
	t.Run("returns the value on first success", func(t *testing.T) {
		attempts := 0
		v, err := withRetry(context.Background(), 5, func() (int, error) {
			attempts++
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries busy errors until success", func(t *testing.T) {
		attempts := 0
		v, err := withRetry(context.Background(), 5, func() (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("database is locked")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		attempts := 0
		err := retryErr(context.Background(), 5, func() error {
			attempts++
			return errors.New("UNIQUE constraint failed: books.title")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		err := retryErr(context.Background(), 3, func() error {
			attempts++
			return errors.New("SQLITE_BUSY")
		})
		require.Error(t, err)
		assert.Equal(t, 4, attempts)
		assert.Contains(t, err.Error(), "SQLITE_BUSY")
	})

	t.Run("stops when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		attempts := 0
		err := retryErr(ctx, 10, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.GreaterOrEqual(t, attempts, 1)
		assert.Less(t, attempts, 11)
	})

	t.Run("zero retries means a single attempt", func(t *testing.T) {
		attempts := 0
		err := retryErr(context.Background(), 0, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func retryErr(ctx context.Context, maxRetries int, fn func() error) error {
	_, err := withRetry(ctx, maxRetries, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
