// Package store is the outbox/inbox/event-trace repository backing the
// publisher and consumer pipelines. It wraps a single pgxpool.Pool and
// exposes semantic methods, not raw SQL, to the rest of this module.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Repository is the outbox/inbox/event-trace access layer. One instance
// is shared across a process's publish and consume paths, following the
// single-connection-pool-per-process shape the consumer pipeline assumes.
type Repository struct {
	pool        *pgxpool.Pool
	schema      string
	traceSchema string
	lg          zerolog.Logger
}

// New builds a Repository over an already-connected pool.
func New(pool *pgxpool.Pool, schema, traceSchema string, lg zerolog.Logger) *Repository {
	return &Repository{
		pool:        pool,
		schema:      schema,
		traceSchema: traceSchema,
		lg:          lg.With().Str("component", "store").Logger(),
	}
}

const (
	maxRetryAttempts = 3
	retryBaseDelay   = 100 * time.Millisecond
)

var retryableSubstrings = []string{
	"connection",
	"server closed",
	"broken pipe",
	"timeout",
	"deadlock",
	"lock timeout",
}

// isRetryable reports whether err looks like a transient connectivity or
// lock-contention failure worth retrying, by substring match on its
// message or by Postgres SQLSTATE 40P01 (deadlock_detected).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40P01" {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// executeWithRetry runs fn up to maxRetryAttempts times with linear
// backoff (100ms * attempt) between retryable failures. A non-retryable
// error returns immediately on the first attempt. pgxpool already
// acquires a fresh connection from the pool on every call, which is
// this package's equivalent of "null the connection handle to force a
// fresh dial" between attempts.
func (r *Repository) executeWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt == maxRetryAttempts {
			break
		}
		r.lg.Warn().Err(err).Int("attempt", attempt).Msg("retryable store error, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
