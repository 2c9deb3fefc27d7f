package broker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/pattern"
)

// element is the registry entry of one stream.
//
// bufMu guards slots and lastProducer; subMu guards the subscriber and
// connection lists. When both are needed bufMu is taken first.
type element struct {
	info data.Info

	bufMu        sync.RWMutex
	slots        [2]data.Package
	active       atomic.Uint32
	lastProducer any

	subMu     sync.RWMutex
	syncSubs  []*subscription
	asyncSubs []*subscription
	conns     []*connection
}

func newElement(info data.Info) *element {
	return &element{info: info}
}

func (e *element) key() pattern.Key {
	return pattern.Key{Group: e.info.Group, Name: e.info.Name}
}

// store writes pkg into the inactive slot and makes it active.
func (e *element) store(pkg data.Package, producer any) {
	e.bufMu.Lock()
	next := 1 - e.active.Load()
	e.slots[next].CopyFrom(pkg)
	e.active.Store(next)
	e.lastProducer = producer
	e.bufMu.Unlock()
}

// front returns a copy of the active slot.
func (e *element) front() data.Package {
	e.bufMu.RLock()
	defer e.bufMu.RUnlock()
	return e.slots[e.active.Load()].Clone()
}

// latest returns a copy of the active slot and the identity that stored it.
func (e *element) latest() (data.Package, any) {
	e.bufMu.RLock()
	defer e.bufMu.RUnlock()
	return e.slots[e.active.Load()].Clone(), e.lastProducer
}

// snapshot copies the sync subscribers and outgoing connections.
func (e *element) snapshot() ([]*subscription, []*connection) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	return append([]*subscription(nil), e.syncSubs...), append([]*connection(nil), e.conns...)
}

func (e *element) asyncSnapshot() []*subscription {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	return append([]*subscription(nil), e.asyncSubs...)
}

func (e *element) addSub(mode deliveryMode, s *subscription) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if mode == modeSync {
		e.syncSubs = append(e.syncSubs, s)
	} else {
		e.asyncSubs = append(e.asyncSubs, s)
	}
}

// removeSubs removes every subscription of r in the given mode and returns
// how many were removed.
func (e *element) removeSubs(mode deliveryMode, r any) int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if mode == modeSync {
		var n int
		e.syncSubs, n = dropSubs(e.syncSubs, r)
		return n
	}
	var n int
	e.asyncSubs, n = dropSubs(e.asyncSubs, r)
	return n
}

// deliveryMode selects a subscriber list.
type deliveryMode int

const (
	modeSync deliveryMode = iota
	modeAsync
)

// subscription is one receiver bound to one stream, timer or trigger. The
// cancelled flag is tripped on removal so deliveries already collected
// into a snapshot are skipped.
type subscription struct {
	id        uuid.UUID
	receiver  Receiver
	param     int
	cancelled atomic.Bool
}

func newSubscription(r Receiver, param int) *subscription {
	return &subscription{id: uuid.New(), receiver: r, param: param}
}

func (s *subscription) live() bool {
	return !s.cancelled.Load()
}

// dropSubs filters subs in place, cancelling the removed entries.
func dropSubs(subs []*subscription, r any) ([]*subscription, int) {
	kept := subs[:0]
	removed := 0
	for _, s := range subs {
		if sameIdentity(s.receiver, r) {
			s.cancelled.Store(true)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	clear(subs[len(kept):])
	return kept, removed
}
