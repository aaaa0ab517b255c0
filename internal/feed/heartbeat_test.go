package feed

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeat_ReportsWhileEnabled(t *testing.T) {
	var reports atomic.Int32
	hb := startHeartbeat(5*time.Millisecond,
		func() (Metrics, bool) { return Metrics{TicksReceived: 1}, true },
		func(m Metrics) {
			assert.Equal(t, uint64(1), m.TicksReceived)
			reports.Add(1)
		})

	require.Eventually(t, func() bool { return reports.Load() >= 2 }, time.Second, time.Millisecond)
	hb.stop()

	after := reports.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, reports.Load())
}

func TestHeartbeat_GatedBySnapshot(t *testing.T) {
	var reports, polls atomic.Int32
	hb := startHeartbeat(5*time.Millisecond,
		func() (Metrics, bool) { polls.Add(1); return Metrics{}, false },
		func(Metrics) { reports.Add(1) })

	require.Eventually(t, func() bool { return polls.Load() >= 2 }, time.Second, time.Millisecond)
	hb.stop()
	assert.Equal(t, int32(0), reports.Load())
}

func TestHeartbeat_NoReportAfterStop(t *testing.T) {
	var reports atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool

	hb := startHeartbeat(time.Millisecond,
		func() (Metrics, bool) {
			if once.CompareAndSwap(false, true) {
				close(entered)
				<-release
			}
			return Metrics{}, true
		},
		func(Metrics) { reports.Add(1) })

	<-entered
	// stop while a tick is between snapshot and report
	stopped := make(chan struct{})
	go func() {
		hb.stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool {
		hb.mu.Lock()
		defer hb.mu.Unlock()
		return hb.stopped
	}, time.Second, time.Millisecond)
	close(release)
	<-stopped

	assert.Equal(t, int32(0), reports.Load())
}
