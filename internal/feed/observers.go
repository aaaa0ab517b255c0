package feed

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// TickFunc observes dispatched ticks. A returned error or a panic is logged
// and isolated to that observer and that tick.
type TickFunc func(Tick) error

// observers is an ordered, copy-on-write list of TickFuncs
type observers struct {
	mu     sync.RWMutex
	fns    []TickFunc
	logger *zap.Logger
}

func newObservers(logger *zap.Logger) *observers {
	return &observers{logger: logger}
}

// Add appends fn; dispatch order is registration order
func (o *observers) Add(fn TickFunc) {
	if fn == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	next := make([]TickFunc, len(o.fns), len(o.fns)+1)
	copy(next, o.fns)
	o.fns = append(next, fn)
}

// Clear removes every observer
func (o *observers) Clear() {
	o.mu.Lock()
	o.fns = nil
	o.mu.Unlock()
}

// Len returns the number of registered observers
func (o *observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.fns)
}

// Dispatch calls every observer registered at the time of the call, outside
// the lock, and returns how many completed without error. Dispatch stops
// early once active reports false; a nil active never stops it.
func (o *observers) Dispatch(t Tick, active func() bool) int {
	o.mu.RLock()
	fns := o.fns
	o.mu.RUnlock()

	succeeded := 0
	for i, fn := range fns {
		if active != nil && !active() {
			break
		}
		if err := invoke(fn, t); err != nil {
			o.logger.Warn("tick observer failed",
				zap.Int("observer", i),
				zap.String("symbol", t.Symbol),
				zap.Int64("timestamp", t.Timestamp),
				zap.Error(err),
			)
			continue
		}
		succeeded++
	}
	return succeeded
}

func invoke(fn TickFunc, t Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(t)
}
