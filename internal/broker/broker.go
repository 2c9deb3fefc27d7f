package broker

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/dispatch"
	"github.com/dshills/databroker/internal/metrics"
	"github.com/dshills/databroker/internal/pattern"
)

// Reserved stream names.
const (
	ReservedGroup   = "data_broker"
	NewStreamName   = "newStream"
	MessagesGroup   = "_MESSAGES_"
	MessageItemName = "message"
)

// Broker is the stream registry and delivery engine.
//
// Lock order: elementsMu, pendingMu, timersMu or triggersMu, then a single
// timer, trigger or element lock. connMu is only combined with element
// locks, which it precedes.
type Broker struct {
	id      uuid.UUID
	logger  *zap.Logger
	metrics *metrics.Metrics
	exec    *dispatch.Executor
	cfg     config

	elementsMu sync.RWMutex
	byID       map[data.StreamID]*element
	byKey      map[pattern.Key]*element
	nextID     atomic.Uint64

	pendingMu sync.Mutex
	pending   [pendingKinds][]*pendingEntry

	timersMu sync.RWMutex
	timers   map[string]*timer

	triggersMu sync.RWMutex
	triggers   map[string]*trigger

	connMu    sync.Mutex
	connCount atomic.Int64

	dirty  *dispatch.DirtySet[*element]
	wakeup *dispatch.Wakeup

	newStream  *element
	messageIDs [severityCount]data.StreamID

	lifeMu          sync.Mutex
	running         atomic.Bool
	stopping        atomic.Bool
	dispatchRunning atomic.Bool
	wg              sync.WaitGroup

	rtMu     sync.Mutex
	rtStop   chan struct{}
	rtActive atomic.Int32

	pushes         atomic.Uint64
	deliveries     atomic.Uint64
	dispatchCycles atomic.Uint64
	panics         atomic.Uint64
}

// New creates a broker with its reserved streams and the realtime timer.
// The dispatch goroutine is not running until Start is called; pushes made
// before that are delivered to async receivers on the first drain.
func New(opts ...Option) *Broker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Broker{
		id:       uuid.New(),
		cfg:      cfg,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		byID:     make(map[data.StreamID]*element),
		byKey:    make(map[pattern.Key]*element),
		timers:   make(map[string]*timer),
		triggers: make(map[string]*trigger),
		dirty:    dispatch.NewDirtySet[*element](),
		wakeup:   dispatch.NewWakeup(),
	}
	b.exec = dispatch.NewExecutor(dispatch.WithPanicHandler(b.handlePanic))

	b.elementsMu.Lock()
	var unused bool
	b.newStream, _ = b.findOrCreateLocked(pattern.Key{Group: ReservedGroup, Name: NewStreamName}, data.FlagRead, &unused)
	created := []*element{b.newStream}
	for sev := Severity(0); sev < severityCount; sev++ {
		e, _ := b.findOrCreateLocked(pattern.Key{Group: MessagesGroup, Name: sev.String()}, data.FlagRead, &unused)
		b.messageIDs[sev] = e.info.ID
		created = append(created, e)
	}
	b.elementsMu.Unlock()

	for _, e := range created {
		b.announce(e)
	}
	b.CreateTimer(RealtimeTimer)
	return b
}

// InstanceID returns the id logged for this broker instance.
func (b *Broker) InstanceID() uuid.UUID {
	return b.id
}

// Start launches the dispatch goroutine and, if anything is registered on
// it, the realtime timer goroutine.
func (b *Broker) Start() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.running.Load() {
		return ErrAlreadyRunning
	}
	b.stopping.Store(false)

	b.rtMu.Lock()
	b.running.Store(true)
	b.rtMu.Unlock()

	b.wg.Add(1)
	go b.dispatchLoop()

	b.kickRealtime()

	b.logger.Info("broker started", zap.Stringer("broker_id", b.id))
	return nil
}

// Stop halts the dispatch and realtime goroutines and waits for them to
// exit. Callbacks already running are allowed to finish.
func (b *Broker) Stop() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if !b.running.Load() {
		return ErrNotRunning
	}
	b.stopping.Store(true)

	b.rtMu.Lock()
	b.running.Store(false)
	b.stopRealtimeLocked()
	b.rtMu.Unlock()

	b.wakeup.Signal()
	for b.dispatchRunning.Load() || b.rtActive.Load() > 0 {
		b.wakeup.Signal()
		time.Sleep(time.Millisecond)
	}
	b.wg.Wait()

	b.logger.Info("broker stopped", zap.Stringer("broker_id", b.id))
	return nil
}

// Running reports whether the broker has been started and not stopped.
func (b *Broker) Running() bool {
	return b.running.Load()
}

// findOrCreateLocked returns the element for key, creating it when absent.
// fresh is true for a new element, which the caller must announce after
// releasing elementsMu. realtime is set when a parked realtime timer
// registration was bound. Caller holds elementsMu for writing.
func (b *Broker) findOrCreateLocked(key pattern.Key, flags data.Flags, realtime *bool) (e *element, fresh bool) {
	if e = b.byKey[key]; e != nil {
		return e, false
	}
	e = newElement(data.Info{
		ID:    data.StreamID(b.nextID.Add(1)),
		Group: key.Group,
		Name:  key.Name,
		Flags: flags,
	})
	b.byID[e.info.ID] = e
	b.byKey[key] = e
	b.metrics.SetStreams(len(b.byID))
	b.logger.Debug("stream created", zapStream(e.info))

	if b.bindPendingLocked(e) {
		*realtime = true
	}
	return e, true
}

// matchLocked returns the elements matching p, ordered by id. Caller holds
// elementsMu.
func (b *Broker) matchLocked(p pattern.Pattern) []*element {
	if !p.IsWildcard() {
		if e := b.byKey[p.Key()]; e != nil {
			return []*element{e}
		}
		return nil
	}
	var out []*element
	for key, e := range b.byKey {
		if p.Matches(key) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, c *element) int {
		return cmp.Compare(a.info.ID, c.info.ID)
	})
	return out
}

// announce pushes the identity of e on the newStream stream.
func (b *Broker) announce(e *element) {
	var p data.Package
	data.Add(&p, "groupName", e.info.Group)
	data.Add(&p, "dataName", e.info.Name)
	data.Add(&p, "dataId", int64(e.info.ID))
	data.Add(&p, "flags", int32(e.info.Flags))
	b.pushElement(b.newStream, p, nil)
}

func (b *Broker) element(id data.StreamID) *element {
	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()
	return b.byID[id]
}

func (b *Broker) elementByKey(group, name string) *element {
	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()
	return b.byKey[pattern.Key{Group: group, Name: name}]
}

// Info returns the identity of group/name, or the zero Info.
func (b *Broker) Info(group, name string) data.Info {
	if e := b.elementByKey(group, name); e != nil {
		return e.info
	}
	return data.Info{}
}

// StreamID returns the id of group/name, or zero.
func (b *Broker) StreamID(group, name string) data.StreamID {
	return b.Info(group, name).ID
}

// Package returns a copy of the latest package of a stream, or an empty
// package for an unknown id.
func (b *Broker) Package(id data.StreamID) data.Package {
	if e := b.element(id); e != nil {
		return e.front()
	}
	return data.Package{}
}

// Streams lists the streams whose flags pass filter, ordered by id.
// FlagNone lists everything.
func (b *Broker) Streams(filter data.Flags) []data.Info {
	b.elementsMu.RLock()
	out := make([]data.Info, 0, len(b.byID))
	for _, e := range b.byID {
		if e.info.Flags.Matches(filter) {
			out = append(out, e.info)
		}
	}
	b.elementsMu.RUnlock()

	slices.SortFunc(out, func(a, c data.Info) int {
		return cmp.Compare(a.ID, c.ID)
	})
	return out
}

func (b *Broker) handlePanic(label any, v any, stack []byte) {
	b.panics.Add(1)
	b.metrics.CallbackPanic()
	b.logger.Error("callback panicked",
		zap.Any("callback", label),
		zap.Any("panic", v),
		zap.ByteString("stack", stack))
	if b.cfg.panicHandler != nil {
		b.cfg.panicHandler(label, v, stack)
	}
}
