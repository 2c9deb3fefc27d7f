package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/databroker/internal/data"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRealtime_StartsOnRegistration(t *testing.T) {
	b := startedBroker(t, WithRealtimeInterval(time.Millisecond))
	b.Publish("g", "d", pkgOf("v", 1), nil, data.FlagRead)
	r := &recorder{}

	assert.False(t, b.RealtimeRunning())
	require.True(t, b.RegisterTimedReceiver(r, "g", "d", RealtimeTimer, 0, 0))

	require.Eventually(t, func() bool { return r.count() > 2 }, waitFor, tick)
	assert.True(t, b.Stats().RealtimeRunning)

	require.True(t, b.UnregisterTimedReceiver(r, "g", "d", RealtimeTimer))
	require.Eventually(t, func() bool { return !b.RealtimeRunning() }, waitFor, tick)
}

func TestRealtime_StartsWithBroker(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0), step: 7 * time.Millisecond}
	b := New(WithRealtimeInterval(time.Millisecond), WithClock(clock.Now))
	b.Publish("g", "d", pkgOf("v", 1), nil, data.FlagRead)
	r := &recorder{}
	require.True(t, b.RegisterTimedReceiver(r, "g", "d", RealtimeTimer, 0, 0))

	time.Sleep(10 * time.Millisecond)
	assert.False(t, b.RealtimeRunning(), "the realtime goroutine waits for Start")

	require.NoError(t, b.Start())
	require.Eventually(t, func() bool {
		c, _ := b.TimerClock(RealtimeTimer)
		return c >= 21
	}, waitFor, tick)

	c, _ := b.TimerClock(RealtimeTimer)
	assert.Zero(t, c%7, "the clock advances in elapsed milliseconds")

	require.NoError(t, b.Stop())
	assert.False(t, b.RealtimeRunning())
}

func TestRealtime_Producer(t *testing.T) {
	b := startedBroker(t, WithRealtimeInterval(time.Millisecond))
	var mu sync.Mutex
	calls := 0
	p := ProduceFunc(func(data.Info, *data.Package, int) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.True(t, b.RegisterTimedProducer(p, "rt", "gen", RealtimeTimer, 0, 0))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, waitFor, tick)

	require.True(t, b.UnregisterTimedProducer(p, "rt", "gen", RealtimeTimer))
	require.Eventually(t, func() bool { return !b.RealtimeRunning() }, waitFor, tick)
}

func TestStop_WaitsForGoroutines(t *testing.T) {
	b := New(WithRealtimeInterval(time.Millisecond), WithDispatchIdle(time.Millisecond))
	b.Publish("g", "d", pkgOf("v", 1), nil, data.FlagRead)
	b.RegisterTimedReceiver(&recorder{}, "g", "d", RealtimeTimer, 0, 0)
	b.RegisterAsync(&recorder{}, "g", "d", 0)
	require.NoError(t, b.Start())
	require.Eventually(t, b.RealtimeRunning, waitFor, tick)

	require.NoError(t, b.Stop())
	assert.False(t, b.RealtimeRunning())
	assert.False(t, b.dispatchRunning.Load())
}
