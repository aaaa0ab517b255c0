package it

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ismaiel54/market-feed-handler/internal/feed"
	"github.com/ismaiel54/market-feed-handler/internal/mockfeed"
	"github.com/ismaiel54/market-feed-handler/internal/observability"
	"github.com/ismaiel54/market-feed-handler/internal/transport"
)

type recorder struct {
	mu    sync.Mutex
	ticks map[string][]int64
	total int
}

func (r *recorder) observe(t feed.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticks == nil {
		r.ticks = make(map[string][]int64)
	}
	r.ticks[t.Symbol] = append(r.ticks[t.Symbol], t.Timestamp)
	r.total++
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func startPipeline(t *testing.T, mcfg mockfeed.Config, logger *zap.Logger) (*feed.Handler, *mockfeed.Server) {
	t.Helper()

	srv := mockfeed.NewServer(mcfg, zap.NewNop())
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	conn := transport.NewConn(transport.Options{
		URL:     "ws" + strings.TrimPrefix(hs.URL, "http"),
		Backoff: transport.Backoff{Min: 10 * time.Millisecond, Max: 100 * time.Millisecond, Factor: 2},
	}, zap.NewNop())

	h := feed.New(feed.Config{
		Symbols:           []string{"AAPL", "MSFT"},
		EnableLogging:     true,
		HistoryCapacity:   50,
		HeartbeatInterval: 20 * time.Millisecond,
		SettleDelay:       3 * time.Second,
	}, conn, logger)
	return h, srv
}

func TestFeedPipeline_EndToEnd(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h, _ := startPipeline(t, mockfeed.Config{Seed: 11, Interval: 5 * time.Millisecond}, zap.New(core))

	rec := &recorder{}
	h.OnTick(rec.observe)

	require.NoError(t, h.Start(context.Background()))
	require.True(t, h.IsConnected())

	require.Eventually(t, func() bool {
		return len(h.RecentTicks("AAPL", 10)) == 10 && len(h.RecentTicks("MSFT", 10)) == 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("heartbeat").Len() > 0
	}, 5*time.Second, 10*time.Millisecond)

	h.Stop()
	assert.False(t, h.IsRunning())
	assert.Equal(t, 1, logs.FilterMessage("feed handler stopped").Len())

	// a batch already being dispatched when Stop ran may still complete
	time.Sleep(20 * time.Millisecond)
	seen := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, rec.count(), "no ticks after Stop")

	m := h.Metrics()
	assert.Equal(t, m.TicksReceived, m.TicksProcessed)
	assert.Equal(t, m.TicksProcessed, m.CallbacksExecuted)
	assert.Equal(t, uint64(seen), m.TicksProcessed)
	assert.Equal(t, uint64(0), m.Reconnects)
	assert.GreaterOrEqual(t, m.P99LatencyUs, 0.0)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for symbol, ts := range rec.ticks {
		for i := 1; i < len(ts); i++ {
			assert.GreaterOrEqual(t, ts[i], ts[i-1], "%s ticks out of order", symbol)
		}
	}

	assert.LessOrEqual(t, len(h.RecentTicks("AAPL", 1000)), 50, "history is bounded")
}

func TestFeedPipeline_MalformedBatchesDropped(t *testing.T) {
	h, srv := startPipeline(t, mockfeed.Config{Seed: 5, Interval: 5 * time.Millisecond, MalformedPct: 50, PingEvery: 3}, zap.NewNop())

	rec := &recorder{}
	h.OnTick(rec.observe)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return rec.count() >= 20 }, 5*time.Second, 10*time.Millisecond)
	h.Stop()
	time.Sleep(20 * time.Millisecond)

	m := h.Metrics()
	assert.Equal(t, m.TicksReceived, m.TicksProcessed)
	assert.Equal(t, uint64(rec.count()), m.TicksProcessed)
	assert.Greater(t, m.MessagesDropped, uint64(0))
	// only trades from valid batches are counted
	assert.Eventually(t, func() bool { return int64(m.TicksReceived) <= srv.Sent() }, time.Second, 10*time.Millisecond)
	for _, tk := range h.RecentTicks("AAPL", 100) {
		assert.Greater(t, tk.Price, 0.0)
	}
}

func TestFeedPipeline_HealthFollowsSession(t *testing.T) {
	h, _ := startPipeline(t, mockfeed.Config{Seed: 1, Interval: 10 * time.Millisecond}, zap.NewNop())
	hc := observability.NewHealthChecker(h, zap.NewNop())
	routes := hc.Handler()

	probe := func() int {
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
		return w.Code
	}

	assert.Equal(t, 503, probe())
	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, 200, probe())
	h.Stop()
	assert.Equal(t, 503, probe())
}
