package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x")), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x")), "kafka: fetch"), true},
		{"plain", errors.New("bad input"), false},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", timeoutErr{}, true},
		{"broker message", errors.New("[5] Leader Not Available"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsRetryableTx(t *testing.T) {
	assert.True(t, IsRetryableTx(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryableTx(eris.Wrap(&pgconn.PgError{Code: "40P01"}, "postgres: apply delta")))
	assert.True(t, IsRetryableTx(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, IsRetryableTx(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsRetryableTx(fmt.Errorf("x: %w", syscall.ECONNRESET)))
	assert.False(t, IsRetryableTx(errors.New("no")))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
}
