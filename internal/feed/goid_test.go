package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoroutineID(t *testing.T) {
	self := goroutineID()
	assert.NotZero(t, self)
	assert.Equal(t, self, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, self, <-other)
}
