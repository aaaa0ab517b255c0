package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/ismaiel54/market-feed-handler/internal/msg"
)

// violation is a tick whose timestamp is older than the previous one for its symbol
type violation struct {
	Symbol   string
	Previous int64
	Got      int64
	Offset   int64
}

// verifier checks that each symbol's ticks arrive in timestamp order and
// that no event is delivered twice.
type verifier struct {
	lastTs     map[string]int64
	counts     map[string]int
	seen       map[string]struct{}
	duplicates map[string]int
	violations []violation
	total      int
}

func newVerifier() *verifier {
	return &verifier{
		lastTs:     make(map[string]int64),
		counts:     make(map[string]int),
		seen:       make(map[string]struct{}),
		duplicates: make(map[string]int),
	}
}

func (v *verifier) observe(m msg.TickMsg, offset int64) {
	v.total++

	if _, dup := v.seen[m.EventID]; dup {
		v.duplicates[m.EventID]++
		return
	}
	v.seen[m.EventID] = struct{}{}
	v.counts[m.Symbol]++

	if prev, ok := v.lastTs[m.Symbol]; ok && m.Timestamp < prev {
		v.violations = append(v.violations, violation{Symbol: m.Symbol, Previous: prev, Got: m.Timestamp, Offset: offset})
		return
	}
	v.lastTs[m.Symbol] = m.Timestamp
}

func (v *verifier) passed() bool {
	return len(v.violations) == 0 && len(v.duplicates) == 0
}

func (v *verifier) report(w io.Writer) {
	fmt.Fprintln(w, "\n=== Verification Results ===")
	fmt.Fprintf(w, "Total ticks consumed: %d\n", v.total)
	fmt.Fprintf(w, "Symbols: %d\n", len(v.counts))

	symbols := make([]string, 0, len(v.counts))
	for s := range v.counts {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fmt.Fprintf(w, "  %s: %d\n", s, v.counts[s])
	}

	fmt.Fprintf(w, "Duplicate event IDs: %d\n", len(v.duplicates))
	fmt.Fprintf(w, "Out-of-order ticks: %d\n", len(v.violations))
	for _, viol := range v.violations {
		fmt.Fprintf(w, "  %s at offset %d: %d after %d\n", viol.Symbol, viol.Offset, viol.Got, viol.Previous)
	}

	if v.passed() {
		fmt.Fprintln(w, "\nVERIFICATION PASSED")
	} else {
		fmt.Fprintln(w, "\nVERIFICATION FAILED")
	}
}
