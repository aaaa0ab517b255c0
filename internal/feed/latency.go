package feed

import "sort"

// DefaultLatencyWindow is the number of samples kept by a LatencyTracker.
const DefaultLatencyWindow = 10000

// LatencyTracker keeps a bounded FIFO window of samples and recomputes the
// average and p99 over the current window on every Record. It is not safe for
// concurrent use; Handler drives it under its metrics lock.
type LatencyTracker struct {
	samples []float64
	next    int
	size    int
	sorted  []float64
	avg     float64
	p99     float64
}

// NewLatencyTracker creates a tracker holding at most capacity samples
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = DefaultLatencyWindow
	}
	return &LatencyTracker{
		samples: make([]float64, capacity),
		sorted:  make([]float64, 0, capacity),
	}
}

// Record appends a sample, evicting the oldest one when the window is full
func (l *LatencyTracker) Record(sample float64) {
	l.samples[l.next] = sample
	l.next = (l.next + 1) % len(l.samples)
	if l.size < len(l.samples) {
		l.size++
	}
	l.recompute()
}

func (l *LatencyTracker) recompute() {
	l.sorted = l.sorted[:0]
	sum := 0.0
	for _, s := range l.window() {
		sum += s
		l.sorted = append(l.sorted, s)
	}
	sort.Float64s(l.sorted)

	n := len(l.sorted)
	l.avg = sum / float64(n)
	l.p99 = l.sorted[n*99/100] // floor(n * 0.99) without float rounding
}

// window returns the live part of the ring; order is irrelevant to the stats
func (l *LatencyTracker) window() []float64 {
	return l.samples[:l.size]
}

// Average returns the mean of the current window, or 0 when empty
func (l *LatencyTracker) Average() float64 { return l.avg }

// P99 returns the sample at rank floor(n*0.99) of the sorted window, or 0 when empty
func (l *LatencyTracker) P99() float64 { return l.p99 }

// Len returns the number of samples in the window
func (l *LatencyTracker) Len() int { return l.size }

// Capacity returns the maximum window size
func (l *LatencyTracker) Capacity() int { return len(l.samples) }
