package broker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/metrics"
	"github.com/dshills/databroker/internal/pattern"
)

// trigger is a named on-demand driver.
type trigger struct {
	name string

	mu        sync.RWMutex
	receivers []*triggeredReceiver
}

type triggeredReceiver struct {
	*subscription
	elem *element
}

func (t *trigger) addReceiver(r Receiver, e *element, param int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers = append(t.receivers, &triggeredReceiver{
		subscription: newSubscription(r, param),
		elem:         e,
	})
}

func (t *trigger) removeReceivers(r any, req pattern.Pattern) int {
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

// CreateTrigger creates a trigger and binds parked registrations naming it.
// It returns false if the trigger already exists.
func (b *Broker) CreateTrigger(name string) bool {
	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.triggersMu.Lock()
	defer b.triggersMu.Unlock()

	if _, ok := b.triggers[name]; ok {
		return false
	}
	t := &trigger{name: name}
	b.triggers[name] = t

	entries := b.pending[pendingTriggered]
	kept := entries[:0]
	for _, p := range entries {
		if p.target != name {
			kept = append(kept, p)
			continue
		}
		elems := b.matchLocked(p.pattern)
		for _, e := range elems {
			t.addReceiver(p.receiver, e, p.param)
		}
		if len(elems) == 0 || p.pattern.IsWildcard() {
			kept = append(kept, p)
		}
	}
	clear(entries[len(kept):])
	b.pending[pendingTriggered] = kept
	b.pendingChangedLocked()

	b.logger.Debug("trigger created", zap.String("trigger", name))
	return true
}

// Fire delivers the current value of every bound stream to the trigger's
// receivers, in registration order, before returning. It returns false for
// an unknown trigger.
//
// The receiver list is copied under the trigger's read lock and the
// callbacks run after it is released, so receivers may register and
// unregister on the same trigger.
func (b *Broker) Fire(name string) bool {
	b.triggersMu.RLock()
	t := b.triggers[name]
	b.triggersMu.RUnlock()
	if t == nil {
		return false
	}

	t.mu.RLock()
	receivers := append([]*triggeredReceiver(nil), t.receivers...)
	t.mu.RUnlock()

	for _, tr := range receivers {
		if !tr.live() {
			continue
		}
		b.deliver(tr.subscription, tr.elem.info, tr.elem.front(), metrics.ModeTriggered)
	}
	return true
}

// RegisterTriggeredReceiver delivers the streams matching group/name to r
// each time the named trigger fires. It returns true when r was bound to
// at least one stream or the pattern has wildcards; otherwise the
// registration is parked until the trigger and a matching stream exist.
func (b *Broker) RegisterTriggeredReceiver(r Receiver, group, name, triggerName string, param int) bool {
	if err := checkIdentity(r); err != nil {
		b.logger.Warn("triggered receiver rejected", zap.Error(err))
		return false
	}
	pat := pattern.Of(group, name)

	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	b.triggersMu.RLock()
	t := b.triggers[triggerName]
	b.triggersMu.RUnlock()

	var elems []*element
	if t != nil {
		elems = b.matchLocked(pat)
		for _, e := range elems {
			t.addReceiver(r, e, param)
		}
	}
	wildcard := pat.IsWildcard()
	if wildcard || len(elems) == 0 {
		b.parkLocked(pendingTriggered, &pendingEntry{
			pattern:  pat,
			receiver: r,
			target:   triggerName,
			param:    param,
		})
	}
	return wildcard || len(elems) > 0
}

// UnregisterTriggeredReceiver removes r from the named trigger for streams
// matching group/name, including parked registrations. It reports whether
// anything was removed.
func (b *Broker) UnregisterTriggeredReceiver(r Receiver, group, name, triggerName string) bool {
	pat := pattern.Of(group, name)
	removed := 0

	b.triggersMu.RLock()
	t := b.triggers[triggerName]
	b.triggersMu.RUnlock()
	if t != nil {
		removed += t.removeReceivers(r, pat)
	}

	b.pendingMu.Lock()
	removed += b.unparkLocked(pendingTriggered, r, triggerName, pat)
	b.pendingMu.Unlock()

	return removed > 0
}
