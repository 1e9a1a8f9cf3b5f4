package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfAndIs(t *testing.T) {
	err := fmt.Errorf("complete task 7: %w", ErrLeaseConflict)
	assert.Equal(t, LeaseConflict, CodeOf(err))
	assert.True(t, errors.Is(err, ErrLeaseConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, Internal, CodeOf(errors.New("db down")))
	assert.Equal(t, Code(""), CodeOf(nil))

	wrapped := Wrap(NotFound, errors.New("record not found"), "task 9")
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("permit: %w", ErrRateLimited.WithRetryAfter(42*time.Second))
	assert.Equal(t, 42*time.Second, RetryAfterOf(err))
	assert.Zero(t, ErrRateLimited.RetryAfter)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(ErrLeaseConflict))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		Unauthorized:    http.StatusUnauthorized,
		NotFound:        http.StatusNotFound,
		LeaseConflict:   http.StatusConflict,
		RateLimited:     http.StatusTooManyRequests,
		BreakerOpen:     http.StatusServiceUnavailable,
		TerminalFailure: http.StatusOK,
		Internal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}
