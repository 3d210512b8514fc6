package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: lookup deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"tagged transient", NewTransientError(errors.New("reference returned 503"), 503), true},
		{"tagged transient wrapped", eris.Wrap(NewTransientError(errors.New("x"), 429), "validate: lookup"), true},
		{"network timeout", timeoutErr{}, true},
		{"timeout inside op error", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", eris.Wrap(syscall.ECONNREFUSED, "fetcher: ftp dial"), true},
		{"message heuristic", errors.New("Get \"x\": tls handshake timeout"), true},
		{"mirror hangup", errors.New("http: server closed idle connection"), true},
		{"permanent", errors.New("unknown field name"), false},
		{"context cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("reference returned 502")
	te := NewTransientError(inner, 502)

	assert.Equal(t, inner.Error(), te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 502, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
