package broker

// Stats is a snapshot of broker counters.
type Stats struct {
	Streams         int
	Timers          int
	Triggers        int
	Pending         int
	Connections     int
	Pushes          uint64
	Deliveries      uint64
	DispatchCycles  uint64
	CallbackPanics  uint64
	RealtimeRunning bool
}

// Stats returns current counters.
func (b *Broker) Stats() Stats {
	var s Stats

	b.elementsMu.RLock()
	s.Streams = len(b.byID)
	b.elementsMu.RUnlock()

	b.pendingMu.Lock()
	s.Pending = b.pendingCountLocked()
	b.pendingMu.Unlock()

	b.timersMu.RLock()
	s.Timers = len(b.timers)
	b.timersMu.RUnlock()

	b.triggersMu.RLock()
	s.Triggers = len(b.triggers)
	b.triggersMu.RUnlock()

	s.Connections = int(b.connCount.Load())
	s.Pushes = b.pushes.Load()
	s.Deliveries = b.deliveries.Load()
	s.DispatchCycles = b.dispatchCycles.Load()
	s.CallbackPanics = b.panics.Load()
	s.RealtimeRunning = b.RealtimeRunning()
	return s
}

// UnregisterAll removes id from every stream, timer and trigger and from
// the parked registrations. id may be a Receiver, a Producer or both.
// Deliveries of id that were already collected are skipped. It returns the
// number of entries removed.
func (b *Broker) UnregisterAll(id any) int {
	if id == nil {
		return 0
	}
	removed := 0

	b.elementsMu.RLock()
	for _, e := range b.byID {
		removed += e.removeSubs(modeSync, id)
		removed += e.removeSubs(modeAsync, id)
	}
	b.elementsMu.RUnlock()

	all := matchAll()
	b.timersMu.RLock()
	for _, t := range b.timers {
		removed += t.removeReceivers(id, all)
		removed += t.removeProducers(id, all)
	}
	b.timersMu.RUnlock()

	b.triggersMu.RLock()
	for _, t := range b.triggers {
		removed += t.removeReceivers(id, all)
	}
	b.triggersMu.RUnlock()

	b.pendingMu.Lock()
	removed += b.unparkAllLocked(id)
	b.pendingMu.Unlock()

	b.stopRealtimeIfIdle()
	return removed
}
