package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newExecutor(retryMax int, errorHandler func(int, []byte) error) *Executor {
	return New(zap.NewNop(), nil, &http.Client{}, retryMax, "test", errorHandler)
}

func postJSON(t *testing.T, url, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	return req
}

func TestDoJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	var out struct {
		Value string `json:"value"`
	}
	err := newExecutor(2, nil).DoJSON(context.Background(), postJSON(t, srv.URL, `{}`), "test", &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
}

func TestDoRawRetriesServerErrorsAndResendsBody(t *testing.T) {
	var calls atomic.Int32
	bodies := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"recovered"}`))
	}))
	t.Cleanup(srv.Close)

	body, err := newExecutor(2, nil).DoRaw(context.Background(), postJSON(t, srv.URL, `{"payload":true}`), "test")

	require.NoError(t, err)
	assert.Equal(t, `{"status":"recovered"}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
	// Every attempt must carry the full request body, including retries.
	for i := 0; i < 3; i++ {
		assert.Equal(t, `{"payload":true}`, <-bodies)
	}
}

func TestDoRawExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newExecutor(1, nil).DoRaw(context.Background(), postJSON(t, srv.URL, `{}`), "test")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed after")
}

func TestDoRawClientErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"bad input"}`))
	}))
	t.Cleanup(srv.Close)

	exec := newExecutor(3, func(status int, body []byte) error {
		return fmt.Errorf("handled %d: %s", status, body)
	})
	_, err := exec.DoRaw(context.Background(), postJSON(t, srv.URL, `{}`), "test")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handled 422")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestDoRawClientErrorDefaultMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newExecutor(0, nil).DoRaw(context.Background(), postJSON(t, srv.URL, `{}`), "test")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "test returned 404")
}

func TestDoJSONDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(srv.Close)

	var out map[string]any
	err := newExecutor(0, nil).DoJSON(context.Background(), postJSON(t, srv.URL, `{}`), "test", &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")
}
