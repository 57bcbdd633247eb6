package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("connection refused")
}

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthzWithoutRedis(t *testing.T) {
	s := NewServer(Options{Logger: quiet()})
	rec := httptest.NewRecorder()
	s.Handler(func() int { return 3 }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 3, resp.Nodes)
	assert.Empty(t, resp.Redis)
}

func TestHealthzWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewServer(Options{Redis: redisPinger{rdb: rdb}, Logger: quiet()})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decode(t, rec).Redis)
}

func TestHealthzRedisDown(t *testing.T) {
	s := NewServer(Options{Redis: failingPinger{}, Logger: quiet()})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.Redis)
	assert.Equal(t, "connection refused", resp.Error)
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	s := NewServer(Options{Logger: quiet()})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "nadi_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer(Options{Gatherer: reg, Logger: quiet()})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nadi_test_total 1")
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(Options{Addr: "127.0.0.1:0", Logger: quiet()})
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer(Options{Addr: "127.0.0.1:0"})
	assert.NoError(t, s.Shutdown(context.Background()))
}
