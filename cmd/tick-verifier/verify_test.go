package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ismaiel54/market-feed-handler/internal/msg"
)

func tickMsg(id, symbol string, ts int64) msg.TickMsg {
	return msg.TickMsg{EventID: id, Symbol: symbol, Price: 1, Timestamp: ts}
}

func TestVerifier_OrderedTicksPass(t *testing.T) {
	v := newVerifier()
	v.observe(tickMsg("1", "AAPL", 10), 0)
	v.observe(tickMsg("2", "MSFT", 5), 1)
	v.observe(tickMsg("3", "AAPL", 10), 2) // equal timestamps are allowed
	v.observe(tickMsg("4", "AAPL", 11), 3)

	assert.True(t, v.passed())

	var out bytes.Buffer
	v.report(&out)
	assert.Contains(t, out.String(), "Total ticks consumed: 4")
	assert.Contains(t, out.String(), "AAPL: 3")
	assert.Contains(t, out.String(), "VERIFICATION PASSED")
}

func TestVerifier_BackwardsTimestampFails(t *testing.T) {
	v := newVerifier()
	v.observe(tickMsg("1", "AAPL", 10), 7)
	v.observe(tickMsg("2", "MSFT", 1), 8)
	v.observe(tickMsg("3", "AAPL", 9), 9)

	assert.False(t, v.passed())
	assert.Equal(t, []violation{{Symbol: "AAPL", Previous: 10, Got: 9, Offset: 9}}, v.violations)

	var out bytes.Buffer
	v.report(&out)
	assert.Contains(t, out.String(), "AAPL at offset 9: 9 after 10")
	assert.Contains(t, out.String(), "VERIFICATION FAILED")
}

func TestVerifier_DuplicateEventFails(t *testing.T) {
	v := newVerifier()
	v.observe(tickMsg("1", "AAPL", 10), 0)
	v.observe(tickMsg("1", "AAPL", 10), 1)

	assert.False(t, v.passed())
	assert.Equal(t, 1, v.duplicates["1"])
	assert.Equal(t, 1, v.counts["AAPL"])
}
