package transport

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(5))
	assert.Equal(t, time.Second, b.Next(5000), "huge attempts stay capped")
}

func TestBackoff_JitterUsesSuppliedSource(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Second, Factor: 2, Jitter: 0.2}

	b.Rand = func() float64 { return 0 }
	assert.Equal(t, 800*time.Millisecond, b.Next(3))

	b.Rand = func() float64 { return 0.5 }
	assert.Equal(t, time.Second, b.Next(3))

	b.Rand = func() float64 { return 0.75 }
	assert.Equal(t, 1100*time.Millisecond, b.Next(3))
}

func TestBackoff_SeededJitterIsDeterministic(t *testing.T) {
	b1 := Backoff{Min: time.Second, Max: time.Second, Jitter: 0.2, Rand: rand.New(rand.NewSource(9)).Float64}
	b2 := Backoff{Min: time.Second, Max: time.Second, Jitter: 0.2, Rand: rand.New(rand.NewSource(9)).Float64}

	for i := 1; i <= 20; i++ {
		w := b1.Next(i)
		assert.Equal(t, w, b2.Next(i))
		assert.GreaterOrEqual(t, w, 800*time.Millisecond)
		assert.Less(t, w, 1200*time.Millisecond)
	}
}

func TestBackoff_ZeroValueDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 100*time.Millisecond, b.Next(3), "Max below Min collapses to Min")
}
