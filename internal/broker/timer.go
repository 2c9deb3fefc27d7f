package broker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/metrics"
	"github.com/dshills/databroker/internal/pattern"
)

// RealtimeTimer is the timer stepped from wall-clock time.
const RealtimeTimer = "_REALTIME_"

// timer is a named logical clock with time-gated producers and receivers.
type timer struct {
	name     string
	streamID data.StreamID

	mu        sync.RWMutex
	clock     int64
	producers []*timedProducer
	receivers []*timedReceiver
}

type timedReceiver struct {
	*subscription
	elem     *element
	period   int64
	nextFire int64
}

type timedProducer struct {
	id        uuid.UUID
	producer  Producer
	elem      *element
	period    int64
	nextFire  int64
	param     int
	cancelled atomic.Bool
}

// due reports whether a registration fires at clock and advances nextFire
// past clock by whole periods. A period of zero or less fires every step.
func due(nextFire *int64, period, clock int64) bool {
	if *nextFire > clock {
		return false
	}
	if period > 0 {
		*nextFire += ((clock-*nextFire)/period + 1) * period
	}
	return true
}

func (t *timer) addReceiver(r Receiver, e *element, period int64, param int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers = append(t.receivers, &timedReceiver{
		subscription: newSubscription(r, param),
		elem:         e,
		period:       period,
		nextFire:     t.clock,
	})
}

func (t *timer) addProducer(p Producer, e *element, period int64, param int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.producers = append(t.producers, &timedProducer{
		id:       uuid.New(),
		producer: p,
		elem:     e,
		period:   period,
		nextFire: t.clock,
		param:    param,
	})
}

// removeReceivers drops receivers of r bound to streams matching req.
func (t *timer) removeReceivers(r any, req pattern.Pattern) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.receivers[:0]
	removed := 0
	for _, tr := range t.receivers {
		if sameIdentity(tr.receiver, r) && req.Matches(tr.elem.key()) {
			tr.cancelled.Store(true)
			removed++
			continue
		}
		kept = append(kept, tr)
	}
	clear(t.receivers[len(kept):])
	t.receivers = kept
	return removed
}

// removeProducers drops producers of p bound to streams matching req.
func (t *timer) removeProducers(p any, req pattern.Pattern) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.producers[:0]
	removed := 0
	for _, tp := range t.producers {
		if sameIdentity(tp.producer, p) && req.Matches(tp.elem.key()) {
			tp.cancelled.Store(true)
			removed++
			continue
		}
		kept = append(kept, tp)
	}
	clear(t.producers[len(kept):])
	t.producers = kept
	return removed
}

func (t *timer) idle() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.receivers) == 0 && len(t.producers) == 0
}

func (t *timer) now() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clock
}

// CreateTimer creates a timer and its clock stream, then binds parked
// registrations naming it. It returns false if the timer already exists.
func (b *Broker) CreateTimer(name string) bool {
	b.elementsMu.Lock()

	if b.timer(name) != nil {
		b.elementsMu.Unlock()
		return false
	}

	// The clock stream is created before the timer is visible so parked
	// receivers are bound to it exactly once, below.
	realtime := false
	stream, fresh := b.findOrCreateLocked(pattern.Key{Group: ReservedGroup, Name: "timers/" + name}, data.FlagRead, &realtime)
	var created []*element
	if fresh {
		created = append(created, stream)
	}
	t := &timer{name: name, streamID: stream.info.ID}

	b.timersMu.Lock()
	b.timers[name] = t
	b.timersMu.Unlock()

	b.pendingMu.Lock()
	var producers []*pendingEntry
	kept := b.pending[pendingTimedReceiver][:0]
	for _, p := range b.pending[pendingTimedReceiver] {
		if p.target != name {
			kept = append(kept, p)
			continue
		}
		elems := b.matchLocked(p.pattern)
		for _, e := range elems {
			t.addReceiver(p.receiver, e, p.period, p.param)
		}
		if len(elems) == 0 || p.pattern.IsWildcard() {
			kept = append(kept, p)
		}
	}
	clear(b.pending[pendingTimedReceiver][len(kept):])
	b.pending[pendingTimedReceiver] = kept

	keptProducers := b.pending[pendingTimedProducer][:0]
	for _, p := range b.pending[pendingTimedProducer] {
		if p.target == name {
			producers = append(producers, p)
			continue
		}
		keptProducers = append(keptProducers, p)
	}
	clear(b.pending[pendingTimedProducer][len(keptProducers):])
	b.pending[pendingTimedProducer] = keptProducers
	b.pendingChangedLocked()
	b.pendingMu.Unlock()

	for _, p := range producers {
		e, fresh := b.findOrCreateLocked(p.pattern.Key(), data.FlagNone, &realtime)
		if fresh {
			created = append(created, e)
		}
		t.addProducer(p.producer, e, p.period, p.param)
	}
	b.elementsMu.Unlock()

	b.logger.Debug("timer created", zap.String("timer", name))
	for _, e := range created {
		b.announce(e)
	}
	if name == RealtimeTimer || realtime {
		b.kickRealtime()
	}
	return true
}

// StepTimer advances the named timer by delta. Due producers regenerate and
// push their streams, the timer's clock stream is pushed, then due
// receivers get the current value of their streams. It returns false for an
// unknown timer.
func (b *Broker) StepTimer(name string, delta int64) bool {
	t := b.timer(name)
	if t == nil {
		return false
	}

	var producers []*timedProducer
	var receivers []*timedReceiver

	t.mu.Lock()
	t.clock += delta
	clock := t.clock
	for _, tp := range t.producers {
		if due(&tp.nextFire, tp.period, clock) {
			producers = append(producers, tp)
		}
	}
	for _, tr := range t.receivers {
		if due(&tr.nextFire, tr.period, clock) {
			receivers = append(receivers, tr)
		}
	}
	t.mu.Unlock()

	for _, tp := range producers {
		if tp.cancelled.Load() {
			continue
		}
		b.produce(tp)
	}

	var tick data.Package
	data.Add(&tick, "t", clock)
	b.Push(t.streamID, tick, nil)

	for _, tr := range receivers {
		if !tr.live() {
			continue
		}
		b.deliver(tr.subscription, tr.elem.info, tr.elem.front(), metrics.ModeTimed)
	}

	b.metrics.TimerStep(name)
	return true
}

// produce lets a producer fill a copy of its stream's package and pushes
// the result.
func (b *Broker) produce(tp *timedProducer) {
	e := tp.elem
	pkg := e.front()
	res := b.exec.Run(tp.id, func() {
		tp.producer.Produce(e.info, &pkg, tp.param)
	})
	if res.Panicked {
		return
	}
	b.pushElement(e, pkg, nil)
}

// RegisterTimedReceiver delivers the streams matching group/name to r
// whenever period units have elapsed on the named timer. It returns true
// when r was bound to at least one stream or the pattern has wildcards;
// otherwise the registration is parked until the timer and stream exist.
func (b *Broker) RegisterTimedReceiver(r Receiver, group, name, timerName string, period int64, param int) bool {
	if err := checkIdentity(r); err != nil {
		b.logger.Warn("timed receiver rejected", zap.Error(err))
		return false
	}
	pat := pattern.Of(group, name)

	b.elementsMu.RLock()
	b.pendingMu.Lock()
	t := b.timer(timerName)
	var elems []*element
	if t != nil {
		elems = b.matchLocked(pat)
		for _, e := range elems {
			t.addReceiver(r, e, period, param)
		}
	}
	wildcard := pat.IsWildcard()
	if wildcard || len(elems) == 0 {
		b.parkLocked(pendingTimedReceiver, &pendingEntry{
			pattern:  pat,
			receiver: r,
			target:   timerName,
			period:   period,
			param:    param,
		})
	}
	b.pendingMu.Unlock()
	b.elementsMu.RUnlock()

	if len(elems) > 0 && timerName == RealtimeTimer {
		b.kickRealtime()
	}
	return wildcard || len(elems) > 0
}

// UnregisterTimedReceiver removes r from the named timer for streams
// matching group/name, including parked registrations. It reports whether
// anything was removed.
func (b *Broker) UnregisterTimedReceiver(r Receiver, group, name, timerName string) bool {
	pat := pattern.Of(group, name)
	removed := 0
	if t := b.timer(timerName); t != nil {
		removed += t.removeReceivers(r, pat)
	}

	b.pendingMu.Lock()
	removed += b.unparkLocked(pendingTimedReceiver, r, timerName, pat)
	b.pendingMu.Unlock()

	b.stopRealtimeIfIdle()
	return removed > 0
}

// RegisterTimedProducer asks p to regenerate the stream group/name whenever
// period units have elapsed on the named timer. The stream is created if
// needed. Patterns are not allowed. If the timer does not exist yet the
// registration is parked and false is returned.
func (b *Broker) RegisterTimedProducer(p Producer, group, name, timerName string, period int64, param int) bool {
	if err := checkIdentity(p); err != nil {
		b.logger.Warn("timed producer rejected", zap.Error(err))
		return false
	}
	pat := pattern.Of(group, name)
	if pat.IsWildcard() {
		b.logger.Warn("timed producer rejected", zap.Error(ErrWildcardProducer), zapPattern(pat))
		return false
	}

	b.elementsMu.Lock()
	b.pendingMu.Lock()
	t := b.timer(timerName)
	if t == nil {
		b.parkLocked(pendingTimedProducer, &pendingEntry{
			pattern:  pat,
			producer: p,
			target:   timerName,
			period:   period,
			param:    param,
		})
		b.pendingMu.Unlock()
		b.elementsMu.Unlock()
		return false
	}
	b.pendingMu.Unlock()

	realtime := false
	e, fresh := b.findOrCreateLocked(pat.Key(), data.FlagNone, &realtime)
	t.addProducer(p, e, period, param)
	b.elementsMu.Unlock()

	if fresh {
		b.announce(e)
	}
	if timerName == RealtimeTimer || realtime {
		b.kickRealtime()
	}
	return true
}

// UnregisterTimedProducer removes p from the named timer, including parked
// registrations. It reports whether anything was removed.
func (b *Broker) UnregisterTimedProducer(p Producer, group, name, timerName string) bool {
	pat := pattern.Of(group, name)
	removed := 0
	if t := b.timer(timerName); t != nil {
		removed += t.removeProducers(p, pat)
	}

	b.pendingMu.Lock()
	removed += b.unparkLocked(pendingTimedProducer, p, timerName, pat)
	b.pendingMu.Unlock()

	b.stopRealtimeIfIdle()
	return removed > 0
}

// TimerClock returns the logical clock of the named timer.
func (b *Broker) TimerClock(name string) (int64, bool) {
	t := b.timer(name)
	if t == nil {
		return 0, false
	}
	return t.now(), true
}

func (b *Broker) timer(name string) *timer {
	b.timersMu.RLock()
	defer b.timersMu.RUnlock()
	return b.timers[name]
}
