package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsRecorder_Snapshot(t *testing.T) {
	r := newMetricsRecorder(4)
	r.tickReceived()
	r.tickReceived()
	r.tickProcessed(3)
	r.tickProcessed(0)
	r.reconnected()
	r.messageDropped()
	r.recordLatency(10)
	r.recordLatency(30)

	m := r.snapshot()
	assert.Equal(t, uint64(2), m.TicksReceived)
	assert.Equal(t, uint64(2), m.TicksProcessed)
	assert.Equal(t, uint64(3), m.CallbacksExecuted)
	assert.Equal(t, uint64(1), m.Reconnects)
	assert.Equal(t, uint64(1), m.MessagesDropped)
	assert.InDelta(t, 20.0, m.AvgLatencyUs, 1e-9)
	assert.Equal(t, 30.0, m.P99LatencyUs)

	// snapshots are copies
	m.TicksReceived = 99
	assert.Equal(t, uint64(2), r.snapshot().TicksReceived)
}

func TestMetrics_String(t *testing.T) {
	m := Metrics{TicksReceived: 5, TicksProcessed: 5, CallbacksExecuted: 10, Reconnects: 1, MessagesDropped: 2, AvgLatencyUs: 12.345, P99LatencyUs: 40}
	s := m.String()

	assert.Contains(t, s, "Ticks received:     5")
	assert.Contains(t, s, "Callbacks executed: 10")
	assert.Contains(t, s, "Reconnects:         1")
	assert.Contains(t, s, "Messages dropped:   2")
	assert.Contains(t, s, "12.35 us")
	assert.Contains(t, s, "40.00 us")
}

func TestMetrics_MarshalLogObject(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("snapshot", zap.Object("metrics", Metrics{TicksReceived: 3, P99LatencyUs: 1.5}))

	entry := logs.All()[0]
	fields := entry.ContextMap()["metrics"].(map[string]interface{})
	assert.Equal(t, uint64(3), fields["ticks_received"])
	assert.Equal(t, 1.5, fields["p99_latency_us"])
}
