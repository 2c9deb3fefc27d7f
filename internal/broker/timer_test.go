package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/databroker/internal/data"
)

func TestDue(t *testing.T) {
	tests := []struct {
		name     string
		next     int64
		period   int64
		clock    int64
		want     bool
		wantNext int64
	}{
		{"not yet", 10, 5, 9, false, 10},
		{"exactly due", 10, 5, 10, true, 15},
		{"catch up skips missed periods", 0, 5, 12, true, 15},
		{"far behind", 0, 3, 100, true, 102},
		{"zero period fires every step", 4, 0, 4, true, 4},
		{"negative period fires every step", 4, -1, 9, true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.next
			assert.Equal(t, tt.want, due(&next, tt.period, tt.clock))
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestTimer_CatchUp(t *testing.T) {
	b := New()
	require.True(t, b.CreateTimer("sim"))
	assert.False(t, b.CreateTimer("sim"))
	b.Publish("g", "d", pkgOf("v", 1), nil, data.FlagRead)
	r := &recorder{}

	require.True(t, b.RegisterTimedReceiver(r, "g", "d", "sim", 5, 9))
	require.True(t, b.StepTimer("sim", 12))

	assert.Equal(t, 1, r.count())
	assert.Equal(t, 9, r.last().param)
	assert.Equal(t, int64(15), b.timer("sim").receivers[0].nextFire)

	b.StepTimer("sim", 2)
	assert.Equal(t, 1, r.count(), "clock 14 is before the next fire time")
	b.StepTimer("sim", 1)
	assert.Equal(t, 2, r.count())

	clock, ok := b.TimerClock("sim")
	assert.True(t, ok)
	assert.Equal(t, int64(15), clock)
}

func TestTimer_ReceiverGetsFrontBuffer(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	id := b.Publish("g", "d", pkgOf("v", 1), nil, data.FlagRead)
	r := &recorder{}
	b.RegisterTimedReceiver(r, "g", "d", "sim", 0, 0)

	b.Push(id, pkgOf("v", 2), nil)
	b.StepTimer("sim", 1)

	v, _ := data.Get[float64](r.last().pkg, "v")
	assert.Equal(t, 2.0, v)
}

func TestTimer_Unknown(t *testing.T) {
	b := New()
	assert.False(t, b.StepTimer("nope", 1))
	_, ok := b.TimerClock("nope")
	assert.False(t, ok)
}

func TestTimer_ClockStream(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	r := &recorder{}
	require.True(t, b.RegisterSync(r, ReservedGroup, "timers/sim", 0))

	b.StepTimer("sim", 3)
	b.StepTimer("sim", 4)

	require.Equal(t, 2, r.count())
	clock, ok := data.Get[int64](r.last().pkg, "t")
	assert.True(t, ok)
	assert.Equal(t, int64(7), clock)
}

func TestTimedReceiver_Pending(t *testing.T) {
	b := New()
	r := &recorder{}

	assert.False(t, b.RegisterTimedReceiver(r, "g", "d", "later", 0, 0), "no timer yet")
	b.CreateTimer("later")
	assert.Equal(t, 1, b.Stats().Pending, "stream still missing")

	b.Publish("g", "d", pkgOf("v", 3), nil, data.FlagRead)
	assert.Equal(t, 0, b.Stats().Pending)

	b.StepTimer("later", 1)
	require.Equal(t, 1, r.count())
}

func TestTimedReceiver_PendingTimer(t *testing.T) {
	b := New()
	b.Publish("g", "d", pkgOf("v", 3), nil, data.FlagRead)
	r := &recorder{}

	assert.False(t, b.RegisterTimedReceiver(r, "g", "d", "later", 0, 0))
	require.True(t, b.CreateTimer("later"))
	assert.Equal(t, 0, b.Stats().Pending)

	b.StepTimer("later", 1)
	assert.Equal(t, 1, r.count())
}

func TestTimedReceiver_Wildcard(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	b.Publish("arm", "j1", pkgOf("q", 1), nil, data.FlagRead)
	r := &recorder{}

	assert.True(t, b.RegisterTimedReceiver(r, "arm", "*", "sim", 0, 0))
	b.Publish("arm", "j2", pkgOf("q", 2), nil, data.FlagRead)

	b.StepTimer("sim", 1)
	assert.Equal(t, 2, r.count())
	assert.Equal(t, 1, b.Stats().Pending)
}

func TestUnregisterTimedReceiver(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	r := &recorder{}
	b.RegisterTimedReceiver(r, "g", "d", "sim", 0, 0)
	b.RegisterTimedReceiver(r, "g", "missing", "sim", 0, 0)

	assert.True(t, b.UnregisterTimedReceiver(r, "g", "*", "sim"))
	assert.False(t, b.UnregisterTimedReceiver(r, "g", "*", "sim"))
	assert.Equal(t, 0, b.Stats().Pending)

	b.StepTimer("sim", 1)
	assert.Equal(t, 0, r.count())
}

func TestTimedProducer(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	var calls []int
	p := ProduceFunc(func(info data.Info, pkg *data.Package, param int) {
		calls = append(calls, param)
		if !data.Put(pkg, "x", float64(len(calls))) {
			data.Add(pkg, "x", float64(len(calls)))
		}
	})

	require.True(t, b.RegisterTimedProducer(p, "sim", "pos", "sim", 2, 7))
	id := b.StreamID("sim", "pos")
	require.NotZero(t, id, "producer registration creates the stream")

	sync := &recorder{}
	b.RegisterSync(sync, "sim", "pos", 0)

	b.StepTimer("sim", 1)
	assert.Equal(t, []int{7}, calls, "fires at the registration clock")
	b.StepTimer("sim", 1)
	assert.Equal(t, []int{7, 7}, calls)
	b.StepTimer("sim", 1)
	assert.Len(t, calls, 2)

	x, ok := data.Get[float64](b.Package(id), "x")
	assert.True(t, ok)
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 2, sync.count())
}

func TestTimedProducer_BeforeReceivers(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	n := 0.0
	p := ProduceFunc(func(_ data.Info, pkg *data.Package, _ int) {
		n++
		pkg.Clear()
		data.Add(pkg, "n", n)
	})
	b.RegisterTimedProducer(p, "g", "d", "sim", 0, 0)
	r := &recorder{}
	b.RegisterTimedReceiver(r, "g", "d", "sim", 0, 0)

	b.StepTimer("sim", 1)

	v, _ := data.Get[float64](r.last().pkg, "n")
	assert.Equal(t, 1.0, v, "receivers see what producers made in the same step")
}

func TestTimedProducer_PendingTimer(t *testing.T) {
	b := New()
	called := 0
	prod := ProduceFunc(func(data.Info, *data.Package, int) { called++ })

	assert.False(t, b.RegisterTimedProducer(prod, "g", "d", "later", 0, 0))
	assert.Zero(t, b.StreamID("g", "d"))

	require.True(t, b.CreateTimer("later"))
	assert.NotZero(t, b.StreamID("g", "d"))
	assert.Equal(t, 0, b.Stats().Pending)

	b.StepTimer("later", 1)
	assert.Equal(t, 1, called)
}

func TestTimedProducer_Rejects(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	p := ProduceFunc(func(data.Info, *data.Package, int) {})

	assert.False(t, b.RegisterTimedProducer(p, "g", "*", "sim", 0, 0))
	assert.False(t, b.RegisterTimedProducer(nil, "g", "d", "sim", 0, 0))
}

func TestUnregisterTimedProducer(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	called := 0
	p := ProduceFunc(func(data.Info, *data.Package, int) { called++ })
	b.RegisterTimedProducer(p, "g", "d", "sim", 0, 0)

	assert.True(t, b.UnregisterTimedProducer(p, "g", "d", "sim"))
	assert.False(t, b.UnregisterTimedProducer(p, "g", "d", "sim"))

	b.StepTimer("sim", 1)
	assert.Zero(t, called)
}

func TestTimedProducer_Panic(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	p := ProduceFunc(func(data.Info, *data.Package, int) { panic("producer") })
	b.RegisterTimedProducer(p, "g", "d", "sim", 0, 0)
	id := b.StreamID("g", "d")
	before := b.Package(id)

	assert.NotPanics(t, func() { b.StepTimer("sim", 1) })
	assert.True(t, before.Equal(b.Package(id)), "a panicking producer does not push")
	assert.Equal(t, uint64(1), b.Stats().CallbackPanics)
}
