package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

func TestHandler_Routes(t *testing.T) {
	metrics.RecordError("service_test")
	s := New(log.NewLogger(log.DiscardHandler()), metrics.Registry)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harness_errors_total")
}

func TestService_StartStop(t *testing.T) {
	s := New(log.NewLogger(log.DiscardHandler()), metrics.Registry)
	require.NoError(t, s.Start("127.0.0.1", 0))

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, New(log.NewLogger(log.DiscardHandler()), metrics.Registry).Stop(context.Background()))
}
