package broker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/databroker/internal/data"
)

// orderedReceiver appends "<tag>:<v>" to a shared log.
type orderedReceiver struct {
	tag string
	mu  *sync.Mutex
	log *[]string
}

func (o *orderedReceiver) Receive(_ data.Info, pkg data.Package, _ int) {
	v, _ := data.Get[float64](pkg, "v")
	o.mu.Lock()
	*o.log = append(*o.log, fmt.Sprintf("%s:%g", o.tag, v))
	o.mu.Unlock()
}

func TestSync_OrderedExactlyOnce(t *testing.T) {
	b := New()
	id := b.Publish("g", "s", data.Package{}, nil, data.FlagRead)

	var mu sync.Mutex
	var log []string
	a := &orderedReceiver{tag: "A", mu: &mu, log: &log}
	c := &orderedReceiver{tag: "B", mu: &mu, log: &log}
	require.True(t, b.RegisterSync(a, "g", "s", 0))
	require.True(t, b.RegisterSync(c, "g", "s", 0))

	b.Push(id, pkgOf("v", 1), nil)
	b.Push(id, pkgOf("v", 2), nil)

	assert.Equal(t, []string{"A:1", "B:1", "A:2", "B:2"}, log)
}

func TestSync_Param(t *testing.T) {
	b := New()
	id := b.Publish("g", "s", data.Package{}, nil, data.FlagRead)
	r := &recorder{}
	b.RegisterSync(r, "g", "s", 42)

	b.Push(id, pkgOf("v", 1), nil)

	require.Equal(t, 1, r.count())
	got := r.last()
	assert.Equal(t, 42, got.param)
	assert.Equal(t, id, got.info.ID)
	assert.Equal(t, "g", got.info.Group)
	assert.Equal(t, "s", got.info.Name)
}

func TestSync_SelfSuppression(t *testing.T) {
	b := New()
	id := b.Publish("g", "s", data.Package{}, nil, data.FlagRead)
	self := &recorder{}
	other := &recorder{}
	b.RegisterSync(self, "g", "s", 0)
	b.RegisterSync(other, "g", "s", 0)

	b.Push(id, pkgOf("v", 1), self)
	assert.Equal(t, 0, self.count())
	assert.Equal(t, 1, other.count())

	b.Push(id, pkgOf("v", 2), other)
	assert.Equal(t, 1, self.count())
	assert.Equal(t, 1, other.count())
}

func TestAsync_SelfSuppression(t *testing.T) {
	b := New(WithDispatchIdle(5 * time.Millisecond))
	self := &recorder{}
	id := b.Publish("g", "s", pkgOf("v", 0), self, data.FlagRead)
	require.True(t, b.RegisterAsync(self, "g", "s", 0))
	require.NoError(t, b.Start())
	defer b.Stop()

	b.Push(id, pkgOf("v", 1), self)
	assert.Never(t, func() bool { return self.count() > 0 }, 100*time.Millisecond, tick)

	b.Push(id, pkgOf("v", 2), nil)
	require.Eventually(t, func() bool { return self.count() == 1 }, waitFor, tick)
	v, _ := data.Get[float64](self.last().pkg, "v")
	assert.Equal(t, 2.0, v)
}

func TestAsync_Coalescing(t *testing.T) {
	b := New(WithDispatchIdle(5 * time.Millisecond))
	id := b.Publish("g", "s", data.Package{}, nil, data.FlagRead)
	r := &recorder{}
	require.True(t, b.RegisterAsync(r, "g", "s", 0))

	for i := 1; i <= 3; i++ {
		b.Push(id, pkgOf("v", float64(i)), nil)
	}
	assert.Equal(t, 0, r.count(), "async delivery waits for the dispatch goroutine")

	require.NoError(t, b.Start())
	defer b.Stop()

	require.Eventually(t, func() bool { return r.count() > 0 }, waitFor, tick)
	assert.Never(t, func() bool { return r.count() > 1 }, 50*time.Millisecond, tick)

	v, _ := data.Get[float64](r.last().pkg, "v")
	assert.Equal(t, 3.0, v)
}

func TestAsync_EndToEnd(t *testing.T) {
	b := startedBroker(t)

	var pkg0 data.Package
	data.Add(&pkg0, "yaw", 0.0)
	id := b.Publish("robot", "imu", pkg0, nil, data.FlagRead)

	logger := &recorder{}
	require.True(t, b.RegisterAsync(logger, "robot", "imu", 0))
	// Let any drain of the creation push finish before pushing pkg1.
	time.Sleep(30 * time.Millisecond)
	before := logger.count()

	var pkg1 data.Package
	data.Add(&pkg1, "yaw", 0.25)
	b.Push(id, pkg1, nil)

	require.Eventually(t, func() bool { return logger.count() == before+1 }, waitFor, tick)
	got := logger.last()
	assert.Equal(t, data.Info{ID: id, Group: "robot", Name: "imu", Flags: data.FlagRead}, got.info)
	assert.True(t, pkg1.Equal(got.pkg))
	assert.Equal(t, 0, got.param)
	assert.Never(t, func() bool { return logger.count() > before+1 }, 50*time.Millisecond, tick)
}

func TestPending_ResolvedOnPublish(t *testing.T) {
	b := New()
	r := &recorder{}

	assert.False(t, b.RegisterSync(r, "g", "d", 3))
	assert.Equal(t, 1, b.Stats().Pending)

	pkg := pkgOf("v", 7)
	id := b.Publish("g", "d", pkg, nil, data.FlagRead)

	require.Equal(t, 1, r.count())
	assert.Equal(t, id, r.last().info.ID)
	assert.Equal(t, 3, r.last().param)
	assert.True(t, pkg.Equal(r.last().pkg))
	assert.Equal(t, 0, b.Stats().Pending, "exact registrations leave the pending list once bound")
}

func TestPending_WildcardPersists(t *testing.T) {
	b := New()
	r := &recorder{}

	assert.True(t, b.RegisterSync(r, "g", "*", 0))
	b.Publish("g", "x", pkgOf("v", 1), nil, data.FlagRead)
	assert.Equal(t, 1, b.Stats().Pending)

	b.Publish("g", "y", pkgOf("v", 2), nil, data.FlagRead)
	b.Publish("other", "z", pkgOf("v", 3), nil, data.FlagRead)

	got := r.all()
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].info.Name)
	assert.Equal(t, "y", got[1].info.Name)
}

func TestPending_WildcardAsync(t *testing.T) {
	b := startedBroker(t)
	r := &recorder{}

	assert.True(t, b.RegisterAsync(r, "g", "*", 0))
	b.Publish("g", "x", pkgOf("v", 1), nil, data.FlagRead)
	b.Publish("g", "y", pkgOf("v", 2), nil, data.FlagRead)

	require.Eventually(t, func() bool {
		names := make(map[string]bool)
		for _, d := range r.all() {
			names[d.info.Name] = true
		}
		return names["x"] && names["y"]
	}, waitFor, tick)
}

func TestRegister_WildcardBindsExisting(t *testing.T) {
	b := New()
	id1 := b.Publish("sensors", "a", data.Package{}, nil, data.FlagRead)
	id2 := b.Publish("sensors", "b", data.Package{}, nil, data.FlagRead)
	r := &recorder{}

	assert.True(t, b.RegisterSync(r, "sens?rs", "*", 0))
	b.Push(id1, pkgOf("v", 1), nil)
	b.Push(id2, pkgOf("v", 2), nil)

	assert.Equal(t, 2, r.count())
}

func TestUnregister_Idempotent(t *testing.T) {
	b := New()
	id := b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	r := &recorder{}
	require.True(t, b.RegisterSync(r, "g", "d", 0))

	assert.True(t, b.UnregisterSync(r, "g", "d"))
	assert.False(t, b.UnregisterSync(r, "g", "d"))

	b.Push(id, pkgOf("v", 1), nil)
	assert.Equal(t, 0, r.count())
}

func TestUnregister_Pending(t *testing.T) {
	b := New()
	r := &recorder{}

	b.RegisterAsync(r, "g", "later", 0)
	b.RegisterAsync(r, "g", "*", 0)
	require.Equal(t, 2, b.Stats().Pending)

	assert.False(t, b.UnregisterAsync(r, "other", "*"))
	assert.True(t, b.UnregisterAsync(r, "g", "*"), "a wildcard request removes parked entries it covers")
	assert.Equal(t, 0, b.Stats().Pending)
}

func TestUnregister_OtherReceiverUntouched(t *testing.T) {
	b := New()
	id := b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	r1, r2 := &recorder{}, &recorder{}
	b.RegisterSync(r1, "g", "d", 0)
	b.RegisterSync(r2, "g", "d", 0)

	assert.True(t, b.UnregisterSync(r1, "g", "d"))
	b.Push(id, pkgOf("v", 1), nil)

	assert.Equal(t, 0, r1.count())
	assert.Equal(t, 1, r2.count())
}

type sliceReceiver []int

func (sliceReceiver) Receive(data.Info, data.Package, int) {}

func TestRegister_RejectsBadReceivers(t *testing.T) {
	b := New()
	b.Publish("g", "d", data.Package{}, nil, data.FlagRead)

	assert.False(t, b.RegisterSync(nil, "g", "d", 0))
	assert.False(t, b.RegisterAsync(sliceReceiver{1}, "g", "d", 0))

	var nilRecorder *recorder
	assert.False(t, b.RegisterSync(nilRecorder, "g", "d", 0))

	assert.ErrorIs(t, checkIdentity(sliceReceiver{}), ErrUncomparableReceiver)
	assert.ErrorIs(t, checkIdentity(nil), ErrNilReceiver)
	assert.NoError(t, checkIdentity(&recorder{}))
}

func TestReceiveFunc(t *testing.T) {
	b := New()
	id := b.Publish("g", "d", data.Package{}, nil, data.FlagRead)

	var got []float64
	fn := ReceiveFunc(func(_ data.Info, pkg data.Package, _ int) {
		v, _ := data.Get[float64](pkg, "v")
		got = append(got, v)
	})
	require.True(t, b.RegisterSync(fn, "g", "d", 0))
	b.Push(id, pkgOf("v", 4), nil)
	b.Push(id, pkgOf("v", 5), fn)

	assert.Equal(t, []float64{4}, got)
}

func TestUnregisterAll(t *testing.T) {
	b := New()
	b.CreateTimer("sim")
	b.CreateTrigger("go")
	b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	r := &recorder{}

	b.RegisterSync(r, "g", "d", 0)
	b.RegisterAsync(r, "g", "d", 0)
	b.RegisterTimedReceiver(r, "g", "d", "sim", 1, 0)
	b.RegisterTriggeredReceiver(r, "g", "d", "go", 0)
	b.RegisterSync(r, "g", "later", 0)

	assert.Equal(t, 5, b.UnregisterAll(r))
	assert.Equal(t, 0, b.Stats().Pending)
	assert.Zero(t, b.UnregisterAll(r))

	b.StepTimer("sim", 1)
	b.Fire("go")
	b.Push(b.StreamID("g", "d"), pkgOf("v", 1), nil)
	assert.Equal(t, 0, r.count())
}

func TestSkipsReceiverRemovedDuringDelivery(t *testing.T) {
	b := New()
	id := b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	second := &recorder{}
	first := ReceiveFunc(func(data.Info, data.Package, int) {
		b.UnregisterSync(second, "g", "d")
	})
	b.RegisterSync(first, "g", "d", 0)
	b.RegisterSync(second, "g", "d", 0)

	b.Push(id, pkgOf("v", 1), nil)

	assert.Equal(t, 0, second.count(), "cancelled entries in a snapshot are skipped")
}

func TestReentrantCallbacks(t *testing.T) {
	b := startedBroker(t)
	src := b.Publish("g", "src", data.Package{}, nil, data.FlagRead)
	downstream := &recorder{}

	relay := ReceiveFunc(func(_ data.Info, pkg data.Package, _ int) {
		b.RegisterSync(downstream, "g", "dst", 0)
		id := b.Publish("g", "dst", data.Package{}, nil, data.FlagRead)
		b.Push(id, pkg, nil)
		b.StreamID("g", "dst")
		b.Streams(data.FlagNone)
		b.EmitDebug("relayed %s", pkg)
	})
	b.RegisterSync(relay, "g", "src", 0)
	b.RegisterAsync(relay, "g", "src", 0)

	done := make(chan struct{})
	go func() {
		b.Push(src, pkgOf("v", 1), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("push from a reentrant callback deadlocked")
	}
	require.Eventually(t, func() bool { return downstream.count() >= 2 }, waitFor, tick)
}

func TestPanickingReceiver(t *testing.T) {
	var hooked int
	b := New(WithPanicHandler(func(any, any, []byte) { hooked++ }))
	id := b.Publish("g", "d", data.Package{}, nil, data.FlagRead)
	after := &recorder{}
	b.RegisterSync(ReceiveFunc(func(data.Info, data.Package, int) { panic("bad subscriber") }), "g", "d", 0)
	b.RegisterSync(after, "g", "d", 0)

	assert.NotPanics(t, func() { b.Push(id, pkgOf("v", 1), nil) })
	assert.Equal(t, 1, after.count())
	assert.Equal(t, uint64(1), b.Stats().CallbackPanics)
	assert.Equal(t, 1, hooked)
}

func TestConcurrentUse(t *testing.T) {
	b := startedBroker(t)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := &recorder{}
			name := fmt.Sprintf("s%d", w)
			for i := 0; i < 50; i++ {
				id := b.Publish("load", name, pkgOf("v", float64(i)), nil, data.FlagRead)
				b.RegisterSync(r, "load", "*", 0)
				b.RegisterAsync(r, "load", name, 0)
				b.Push(id, pkgOf("v", float64(i)), r)
				b.UnregisterAsync(r, "load", name)
				b.Package(id)
			}
			b.UnregisterAll(r)
		}(w)
	}
	wg.Wait()

	for w := 0; w < 4; w++ {
		v, ok := data.Get[float64](b.Package(b.StreamID("load", fmt.Sprintf("s%d", w))), "v")
		assert.True(t, ok)
		assert.Equal(t, 49.0, v)
	}
}
