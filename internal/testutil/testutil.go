// Package testutil provides helpers for exercising the debug HTTP routes in
// tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// LoopbackAddr is the remote address given to debug requests. tsweb only
// serves /debug/ to loopback or tailnet peers.
const LoopbackAddr = "127.0.0.1:12345"

// NewDebugRequest creates a request that passes the tsweb debug access check.
func NewDebugRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = LoopbackAddr
	return req
}

// ServeDebug serves one debug request against h and returns the recorder.
func ServeDebug(t testing.TB, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, NewDebugRequest(method, path))
	return rec
}

// DecodeJSON decodes the recorded body into v, failing the test on error.
func DecodeJSON(t testing.TB, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
