package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ismaiel54/market-feed-handler/internal/feed"
)

type stubFeed struct {
	running   atomic.Bool
	connected atomic.Bool
	metrics   feed.Metrics
}

func (s *stubFeed) IsRunning() bool       { return s.running.Load() }
func (s *stubFeed) IsConnected() bool     { return s.connected.Load() }
func (s *stubFeed) Metrics() feed.Metrics { return s.metrics }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	fs := &stubFeed{}
	hc := NewHealthChecker(fs, zap.NewNop())
	h := hc.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)

	fs.running.Store(true)
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	hc.SetKafkaReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	hc.SetKafkaReady(true)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	require.NoError(t, hc.Shutdown(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	fs := &stubFeed{metrics: feed.Metrics{TicksReceived: 5, TicksProcessed: 5, CallbacksExecuted: 10, P99LatencyUs: 3.5}}
	fs.running.Store(true)
	fs.connected.Store(true)
	hc := NewHealthChecker(fs, zap.NewNop())

	rec := get(t, hc.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5.0, body["ticks_received"])
	assert.Equal(t, 10.0, body["callbacks_executed"])
	assert.Equal(t, 3.5, body["p99_latency_us"])
	assert.Equal(t, true, body["connected"])

	post := httptest.NewRecorder()
	hc.Handler().ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code)
}

func grpcStatus(t *testing.T, hc *HealthChecker) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hc.grpcHealth.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.Status
}

func TestGRPCStatusFollowsConnection(t *testing.T) {
	fs := &stubFeed{}
	hc := NewHealthChecker(fs, zap.NewNop())

	hc.Refresh()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, grpcStatus(t, hc))

	fs.connected.Store(true)
	hc.Refresh()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, grpcStatus(t, hc))

	fs.connected.Store(false)
	hc.Refresh()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, grpcStatus(t, hc))
}

func TestWatchStopsWithContext(t *testing.T) {
	fs := &stubFeed{}
	hc := NewHealthChecker(fs, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hc.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	fs.connected.Store(true)
	require.Eventually(t, func() bool {
		return grpcStatus(t, hc) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
