package feed

import (
	"context"
	"sync"
	"time"
)

// heartbeat periodically reports a metrics snapshot until stopped.
type heartbeat struct {
	interval time.Duration
	// snapshot returns false when nothing should be reported this round
	snapshot func() (Metrics, bool)
	report   func(Metrics)

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func startHeartbeat(interval time.Duration, snapshot func() (Metrics, bool), report func(Metrics)) *heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{
		interval: interval,
		snapshot: snapshot,
		report:   report,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go hb.loop(ctx)
	return hb
}

func (hb *heartbeat) loop(ctx context.Context) {
	defer close(hb.done)

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.fire()
		}
	}
}

func (hb *heartbeat) fire() {
	m, ok := hb.snapshot()
	if !ok {
		return
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if hb.stopped {
		return
	}
	hb.report(m)
}

// stop blocks until the loop has exited. No report starts after stop is entered.
func (hb *heartbeat) stop() {
	hb.mu.Lock()
	hb.stopped = true
	hb.mu.Unlock()

	hb.cancel()
	<-hb.done
}
