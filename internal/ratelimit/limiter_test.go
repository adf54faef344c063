package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestLimiter(window time.Duration, capacity int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(window, capacity)
	l.now = clock.Now

	return l, clock
}

func TestLimiter(t *testing.T) {
	t.Run("grants exactly capacity acquisitions within the window", func(t *testing.T) {
		l, clock := newTestLimiter(time.Minute, 3)
		for i := 0; i < 3; i++ {
			require.True(t, l.TryAcquire(), "acquisition #%d", i+1)
			clock.Advance(time.Second)
		}

		require.False(t, l.TryAcquire())
	})

	t.Run("grants one more acquisition after the oldest one ages out", func(t *testing.T) {
		l, clock := newTestLimiter(time.Minute, 3)
		require.True(t, l.TryAcquire())
		clock.Advance(10 * time.Second)
		require.True(t, l.TryAcquire())
		require.True(t, l.TryAcquire())
		require.False(t, l.TryAcquire())

		clock.Advance(50 * time.Second) // exactly one window since the first acquisition
		require.True(t, l.TryAcquire())
		// The other two are still within the window
		require.False(t, l.TryAcquire())

		clock.Advance(10 * time.Second)
		require.True(t, l.TryAcquire())
	})

	t.Run("non positive capacity disables acquisitions", func(t *testing.T) {
		for _, capacity := range []int{0, -1} {
			l, _ := newTestLimiter(time.Minute, capacity)
			require.False(t, l.TryAcquire())
		}
	})

	t.Run("concurrent callers never exceed the capacity", func(t *testing.T) {
		l, _ := newTestLimiter(time.Hour, 50)
		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.TryAcquire() {
					granted.Add(1)
				}
			}()
		}

		wg.Wait()
		require.Equal(t, int32(50), granted.Load())
	})
}
