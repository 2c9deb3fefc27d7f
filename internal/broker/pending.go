package broker

import (
	"github.com/dshills/databroker/internal/pattern"
)

// pendingKind identifies the discipline of a parked registration.
type pendingKind int

const (
	pendingSync pendingKind = iota
	pendingAsync
	pendingTimedReceiver
	pendingTimedProducer
	pendingTriggered
	pendingKinds
)

// pendingEntry is a registration waiting for its stream, timer or trigger.
type pendingEntry struct {
	pattern  pattern.Pattern
	receiver Receiver
	producer Producer
	target   string // timer or trigger name
	period   int64
	param    int
}

// identity returns the receiver or producer of the entry.
func (p *pendingEntry) identity() any {
	if p.producer != nil {
		return p.producer
	}
	return p.receiver
}

// park appends an entry. Caller holds pendingMu.
func (b *Broker) parkLocked(kind pendingKind, p *pendingEntry) {
	b.pending[kind] = append(b.pending[kind], p)
	b.pendingChangedLocked()
}

// unparkLocked removes entries of kind whose identity is id, whose target
// equals target and whose pattern text is covered by req. Caller holds
// pendingMu.
func (b *Broker) unparkLocked(kind pendingKind, id any, target string, req pattern.Pattern) int {
	entries := b.pending[kind]
	kept := entries[:0]
	removed := 0
	for _, p := range entries {
		if sameIdentity(p.identity(), id) && p.target == target && req.Covers(p.pattern) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	clear(entries[len(kept):])
	b.pending[kind] = kept
	if removed > 0 {
		b.pendingChangedLocked()
	}
	return removed
}

// unparkAllLocked removes every entry of id regardless of kind. Caller
// holds pendingMu.
func (b *Broker) unparkAllLocked(id any) int {
	removed := 0
	for kind := range b.pending {
		entries := b.pending[kind]
		kept := entries[:0]
		for _, p := range entries {
			if sameIdentity(p.identity(), id) {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		clear(entries[len(kept):])
		b.pending[kind] = kept
	}
	if removed > 0 {
		b.pendingChangedLocked()
	}
	return removed
}

func (b *Broker) pendingCountLocked() int {
	n := 0
	for _, entries := range b.pending {
		n += len(entries)
	}
	return n
}

func (b *Broker) pendingChangedLocked() {
	b.metrics.SetPending(b.pendingCountLocked())
}

// bindPendingLocked attaches every matching sync, async, timed and
// triggered registration to a freshly created element. Exact entries are
// removed once bound; wildcard entries stay. It reports whether the
// realtime timer gained a receiver. Caller holds elementsMu for writing
// and must not hold pendingMu.
func (b *Broker) bindPendingLocked(e *element) (realtime bool) {
	key := e.key()

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	for _, kind := range []pendingKind{pendingSync, pendingAsync} {
		mode := modeSync
		if kind == pendingAsync {
			mode = modeAsync
		}
		b.pending[kind] = b.filterPending(b.pending[kind], key, func(p *pendingEntry) bool {
			e.addSub(mode, newSubscription(p.receiver, p.param))
			b.logger.Debug("bound pending registration",
				zapStream(e.info), zapPattern(p.pattern), zapMode(kind))
			return true
		})
	}

	b.timersMu.RLock()
	b.pending[pendingTimedReceiver] = b.filterPending(b.pending[pendingTimedReceiver], key, func(p *pendingEntry) bool {
		t := b.timers[p.target]
		if t == nil {
			return false
		}
		t.addReceiver(p.receiver, e, p.period, p.param)
		if t.name == RealtimeTimer {
			realtime = true
		}
		return true
	})
	b.timersMu.RUnlock()

	b.triggersMu.RLock()
	b.pending[pendingTriggered] = b.filterPending(b.pending[pendingTriggered], key, func(p *pendingEntry) bool {
		tr := b.triggers[p.target]
		if tr == nil {
			return false
		}
		tr.addReceiver(p.receiver, e, p.param)
		return true
	})
	b.triggersMu.RUnlock()

	b.pendingChangedLocked()
	return realtime
}

// filterPending calls bind for every entry matching key and drops exact
// entries that bind accepted.
func (b *Broker) filterPending(entries []*pendingEntry, key pattern.Key, bind func(*pendingEntry) bool) []*pendingEntry {
	kept := entries[:0]
	for _, p := range entries {
		if p.pattern.Matches(key) && bind(p) && !p.pattern.IsWildcard() {
			continue
		}
		kept = append(kept, p)
	}
	clear(entries[len(kept):])
	return kept
}

func (k pendingKind) String() string {
	switch k {
	case pendingSync:
		return "sync"
	case pendingAsync:
		return "async"
	case pendingTimedReceiver:
		return "timed_receiver"
	case pendingTimedProducer:
		return "timed_producer"
	case pendingTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// matchAll returns a pattern matching every stream.
func matchAll() pattern.Pattern {
	return pattern.Of(pattern.WildcardAny, pattern.WildcardAny)
}
