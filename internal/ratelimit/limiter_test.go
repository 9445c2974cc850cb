package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(rules map[string]Rule) (*Limiter, *fakeClock) {
	l := New(rules)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l.now = clock.now
	return l, clock
}

func TestAdmit_ThresholdWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 3, FailureCost: 1},
	})

	for i := 0; i < 3; i++ {
		require.True(t, l.Admit("follow", "10.0.0.1"), "attempt %d should be admitted", i+1)
	}
	assert.False(t, l.Admit("follow", "10.0.0.1"), "attempt over threshold must be rejected")
}

func TestAdmit_WindowExpiryReadmits(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 2},
	})

	require.True(t, l.Admit("follow", "10.0.0.1"))
	require.True(t, l.Admit("follow", "10.0.0.1"))
	require.False(t, l.Admit("follow", "10.0.0.1"))

	clock.advance(time.Minute + time.Second)
	assert.True(t, l.Admit("follow", "10.0.0.1"), "attempts must be admitted again after the window")
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 1},
	})

	require.True(t, l.Admit("follow", "10.0.0.1"))
	require.False(t, l.Admit("follow", "10.0.0.1"))

	assert.True(t, l.Admit("follow", "10.0.0.2"), "other origin must not be affected")
	assert.True(t, l.Admit("like", "10.0.0.1"), "other action must not be affected")
}

func TestRecordOutcome_FailureWeightsHeavier(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"signup":  {Window: time.Minute, Threshold: 5, SuccessCost: 0, FailureCost: 4},
		"default": {Window: time.Minute, Threshold: 30},
	})

	// One failed signup costs the attempt (1) plus the failure weight (4),
	// which saturates the threshold on its own.
	require.True(t, l.Admit("signup", "10.0.0.9"))
	l.RecordOutcome("signup", "10.0.0.9", false)
	assert.False(t, l.Admit("signup", "10.0.0.9"))

	// Successful signups only carry the attempt cost.
	for i := 0; i < 4; i++ {
		require.True(t, l.Admit("signup", "10.0.0.8"), "attempt %d", i+1)
		l.RecordOutcome("signup", "10.0.0.8", true)
	}
	assert.True(t, l.Admit("signup", "10.0.0.8"))
}

func TestAdmit_FallsBackToDefaultRule(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 1},
	})

	require.True(t, l.Admit("unknown-action", "o"))
	assert.False(t, l.Admit("unknown-action", "o"))
}

func TestSweep_EvictsExpiredKeys(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 5},
	})

	require.True(t, l.Admit("follow", "10.0.0.1"))
	require.True(t, l.Admit("like", "10.0.0.2"))

	clock.advance(2 * time.Minute)
	l.sweepOnce()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.attempts, "expired keys should be evicted")
}

func TestAdmit_ConcurrentSameKey(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"default": {Window: time.Minute, Threshold: 50},
	})

	var wg sync.WaitGroup
	admitted := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- l.Admit("follow", "10.0.0.1")
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 50, count, "exactly threshold-many attempts may pass")
}
