package feed

import (
	"sort"
	"sync"
)

// DefaultHistoryCapacity is the number of ticks retained per symbol.
const DefaultHistoryCapacity = 10000

// tickRing is a fixed-size circular buffer of ticks.
type tickRing struct {
	data  []Tick
	index int // next write position
	size  int
}

func newTickRing(capacity int) *tickRing {
	return &tickRing{data: make([]Tick, capacity)}
}

func (r *tickRing) append(t Tick) {
	r.data[r.index] = t
	r.index = (r.index + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
}

// latest copies the n newest ticks, oldest first
func (r *tickRing) latest(n int) []Tick {
	if n > r.size {
		n = r.size
	}
	out := make([]Tick, n)
	start := (r.index - n + len(r.data)) % len(r.data)
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// History retains the most recent ticks of every symbol seen
type History struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*tickRing
}

// NewHistory creates a store keeping at most capacity ticks per symbol
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		rings:    make(map[string]*tickRing),
	}
}

// Append stores t under its symbol, evicting that symbol's oldest tick when full
func (h *History) Append(t Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.rings[t.Symbol]
	if !ok {
		ring = newTickRing(h.capacity)
		h.rings[t.Symbol] = ring
	}
	ring.append(t)
}

// Recent returns up to count of the newest ticks for symbol in arrival order.
// Unknown symbols and non-positive counts yield an empty slice.
func (h *History) Recent(symbol string, count int) []Tick {
	if count <= 0 {
		return []Tick{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	ring, ok := h.rings[symbol]
	if !ok {
		return []Tick{}
	}
	return ring.latest(count)
}

// Len returns the number of ticks stored for symbol
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ring, ok := h.rings[symbol]; ok {
		return ring.size
	}
	return 0
}

// Symbols returns every symbol with stored ticks, sorted
func (h *History) Symbols() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.rings))
	for sym := range h.rings {
		out = append(out, sym)
	}
	h.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Capacity returns the per-symbol limit
func (h *History) Capacity() int {
	return h.capacity
}
