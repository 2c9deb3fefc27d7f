package broker

import (
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/pattern"
)

// RegisterSync subscribes r to the streams matching group/name with
// synchronous delivery. It returns true when r was bound to at least one
// existing stream or the pattern has wildcards. Unbound or wildcard
// registrations are parked and bound to matching streams as they appear.
func (b *Broker) RegisterSync(r Receiver, group, name string, param int) bool {
	return b.register(modeSync, r, group, name, param)
}

// RegisterAsync subscribes r to the streams matching group/name with
// delivery from the dispatch goroutine. Pushes between two drains
// coalesce; r sees the latest value once. Return value and parking follow
// RegisterSync.
func (b *Broker) RegisterAsync(r Receiver, group, name string, param int) bool {
	return b.register(modeAsync, r, group, name, param)
}

// UnregisterSync removes the sync subscriptions of r on streams matching
// group/name and the parked registrations of r whose pattern is covered by
// group/name. It reports whether anything was removed.
func (b *Broker) UnregisterSync(r Receiver, group, name string) bool {
	return b.unregister(modeSync, r, group, name)
}

// UnregisterAsync is UnregisterSync for async subscriptions.
func (b *Broker) UnregisterAsync(r Receiver, group, name string) bool {
	return b.unregister(modeAsync, r, group, name)
}

func (b *Broker) register(mode deliveryMode, r Receiver, group, name string, param int) bool {
	kind := pendingSync
	if mode == modeAsync {
		kind = pendingAsync
	}
	if err := checkIdentity(r); err != nil {
		b.logger.Warn("registration rejected", zap.Error(err), zapMode(kind))
		return false
	}
	pat := pattern.Of(group, name)

	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()

	elems := b.matchLocked(pat)
	for _, e := range elems {
		e.addSub(mode, newSubscription(r, param))
	}

	wildcard := pat.IsWildcard()
	if wildcard || len(elems) == 0 {
		b.pendingMu.Lock()
		b.parkLocked(kind, &pendingEntry{pattern: pat, receiver: r, param: param})
		b.pendingMu.Unlock()
	}
	return wildcard || len(elems) > 0
}

func (b *Broker) unregister(mode deliveryMode, r Receiver, group, name string) bool {
	kind := pendingSync
	if mode == modeAsync {
		kind = pendingAsync
	}
	pat := pattern.Of(group, name)

	b.elementsMu.RLock()
	defer b.elementsMu.RUnlock()

	removed := 0
	for _, e := range b.matchLocked(pat) {
		removed += e.removeSubs(mode, r)
	}

	b.pendingMu.Lock()
	removed += b.unparkLocked(kind, r, "", pat)
	b.pendingMu.Unlock()

	return removed > 0
}
