package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableMatchesSubstrings(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("server closed the connection unexpectedly"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("context deadline exceeded: timeout"), true},
		{errors.New("deadlock detected"), true},
		{errors.New("canceling statement due to lock timeout"), true},
		{errors.New("syntax error at or near \"SELCT\""), false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isRetryable(c.err), "%v", c.err)
	}
}

func TestIsRetryableMatchesSQLState40P01(t *testing.T) {
	err := &pgconn.PgError{Code: "40P01", Message: "deadlock_detected"}
	assert.True(t, isRetryable(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("not a pg error")))
}
