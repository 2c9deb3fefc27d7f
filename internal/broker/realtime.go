package broker

import (
	"time"

	"go.uber.org/zap"
)

// kickRealtime starts the realtime goroutine when the broker is running,
// the goroutine is not, and something is registered on RealtimeTimer.
func (b *Broker) kickRealtime() {
	b.rtMu.Lock()
	defer b.rtMu.Unlock()
	if !b.running.Load() || b.rtStop != nil {
		return
	}
	if t := b.timer(RealtimeTimer); t == nil || t.idle() {
		return
	}
	stop := make(chan struct{})
	b.rtStop = stop
	b.wg.Add(1)
	b.rtActive.Add(1)
	go b.runRealtime(stop)
	b.logger.Debug("realtime timer started")
}

// stopRealtimeIfIdle stops the realtime goroutine once nothing is
// registered on RealtimeTimer.
func (b *Broker) stopRealtimeIfIdle() {
	b.rtMu.Lock()
	defer b.rtMu.Unlock()
	if b.rtStop == nil {
		return
	}
	if t := b.timer(RealtimeTimer); t != nil && t.idle() {
		b.stopRealtimeLocked()
		b.logger.Debug("realtime timer stopped")
	}
}

// stopRealtimeLocked signals the realtime goroutine. Caller holds rtMu.
func (b *Broker) stopRealtimeLocked() {
	if b.rtStop != nil {
		close(b.rtStop)
		b.rtStop = nil
	}
}

// RealtimeRunning reports whether the realtime goroutine is active.
func (b *Broker) RealtimeRunning() bool {
	return b.rtActive.Load() > 0
}

// runRealtime steps RealtimeTimer with the elapsed whole milliseconds on
// every tick until stop is closed.
func (b *Broker) runRealtime(stop <-chan struct{}) {
	defer b.wg.Done()
	defer b.rtActive.Add(-1)

	ticker := time.NewTicker(b.cfg.realtimeInterval)
	defer ticker.Stop()

	last := b.cfg.clock()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		select {
		case <-stop:
			return
		default:
		}

		dt := b.cfg.clock().Sub(last).Milliseconds()
		last = last.Add(time.Duration(dt) * time.Millisecond)
		if !b.StepTimer(RealtimeTimer, dt) {
			b.logger.Warn("realtime timer missing", zap.String("timer", RealtimeTimer))
			return
		}
	}
}
