package http_client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, retry *RetryConfig) *InstrumentedClient {
	cfg := &HTTPClientsConfig{Clients: map[string]*HTTPClientConfig{"default": {BaseURL: baseURL + "/", Retry: retry}}}
	cfg.applyDefaults()
	return newInstrumentedClient("default", cfg.Clients["default"])
}

func TestInstrumentedClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"hi"}`))
	}))
	defer srv.Close()

	ic := newTestClient(srv.URL, nil)
	var out struct {
		Message string `json:"message"`
	}
	_, err := ic.Post(context.Background(), "render", map[string]string{"t": "x"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Message)
}

func TestInstrumentedClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ic := newTestClient(srv.URL, &RetryConfig{Enabled: true, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	resp, err := ic.Post(context.Background(), "/contacted", []byte(`{}`), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInstrumentedClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).Get(context.Background(), "/x", map[string]string{"a": "1"}, nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, se.Temporary())
}
