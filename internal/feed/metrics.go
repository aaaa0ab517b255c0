package feed

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Metrics is a point-in-time copy of the handler counters. Latencies are in
// microseconds and cover the current latency window.
type Metrics struct {
	TicksReceived     uint64  `json:"ticks_received"`
	TicksProcessed    uint64  `json:"ticks_processed"`
	CallbacksExecuted uint64  `json:"callbacks_executed"`
	Reconnects        uint64  `json:"reconnects"`
	// MessagesDropped counts trade messages rejected by decode or validation
	MessagesDropped   uint64  `json:"messages_dropped"`
	AvgLatencyUs      float64 `json:"avg_latency_us"`
	P99LatencyUs      float64 `json:"p99_latency_us"`
}

// String renders the human-readable metrics report
func (m Metrics) String() string {
	var b strings.Builder
	b.WriteString("=== Feed Handler Metrics ===\n")
	fmt.Fprintf(&b, "Ticks received:     %d\n", m.TicksReceived)
	fmt.Fprintf(&b, "Ticks processed:    %d\n", m.TicksProcessed)
	fmt.Fprintf(&b, "Callbacks executed: %d\n", m.CallbacksExecuted)
	fmt.Fprintf(&b, "Reconnects:         %d\n", m.Reconnects)
	fmt.Fprintf(&b, "Messages dropped:   %d\n", m.MessagesDropped)
	fmt.Fprintf(&b, "Avg latency:        %.2f us\n", m.AvgLatencyUs)
	fmt.Fprintf(&b, "P99 latency:        %.2f us\n", m.P99LatencyUs)
	return b.String()
}

// MarshalLogObject lets Metrics be logged with zap.Object
func (m Metrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("ticks_received", m.TicksReceived)
	enc.AddUint64("ticks_processed", m.TicksProcessed)
	enc.AddUint64("callbacks_executed", m.CallbacksExecuted)
	enc.AddUint64("reconnects", m.Reconnects)
	enc.AddUint64("messages_dropped", m.MessagesDropped)
	enc.AddFloat64("avg_latency_us", m.AvgLatencyUs)
	enc.AddFloat64("p99_latency_us", m.P99LatencyUs)
	return nil
}

// metricsRecorder owns the counters and the latency window behind one mutex
type metricsRecorder struct {
	mu      sync.Mutex
	m       Metrics
	latency *LatencyTracker
}

func newMetricsRecorder(window int) *metricsRecorder {
	return &metricsRecorder{latency: NewLatencyTracker(window)}
}

func (r *metricsRecorder) tickReceived() {
	r.mu.Lock()
	r.m.TicksReceived++
	r.mu.Unlock()
}

func (r *metricsRecorder) tickProcessed(callbacks int) {
	r.mu.Lock()
	r.m.CallbacksExecuted += uint64(callbacks)
	r.m.TicksProcessed++
	r.mu.Unlock()
}

func (r *metricsRecorder) reconnected() {
	r.mu.Lock()
	r.m.Reconnects++
	r.mu.Unlock()
}

func (r *metricsRecorder) messageDropped() {
	r.mu.Lock()
	r.m.MessagesDropped++
	r.mu.Unlock()
}

func (r *metricsRecorder) recordLatency(us float64) {
	r.mu.Lock()
	r.latency.Record(us)
	r.m.AvgLatencyUs = r.latency.Average()
	r.m.P99LatencyUs = r.latency.P99()
	r.mu.Unlock()
}

func (r *metricsRecorder) snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}
