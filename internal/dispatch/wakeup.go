package dispatch

import (
	"sync"
	"time"
)

// Wakeup is a level-triggered signal between many producers and a single
// waiting loop.
//
// Signal and TrySignal set a pending flag before notifying, so a signal
// sent while the loop is busy is observed on its next Wait. TrySignal never
// blocks: if the internal lock is contended it still records the pending
// flag and relies on the waiter's bounded sleep to pick it up.
type Wakeup struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	flagged chan struct{}
}

// NewWakeup creates a Wakeup.
func NewWakeup() *Wakeup {
	w := &Wakeup{flagged: make(chan struct{}, 1)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Signal marks the wakeup pending and wakes the waiter.
func (w *Wakeup) Signal() {
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// TrySignal is Signal without blocking. It reports whether the lock was
// acquired; when it was not, the signal is parked and delivered by the
// waiter within its timeout.
func (w *Wakeup) TrySignal() bool {
	if !w.mu.TryLock() {
		select {
		case w.flagged <- struct{}{}:
		default:
		}
		return false
	}
	w.pending = true
	w.mu.Unlock()
	w.cond.Broadcast()
	return true
}

// Wait blocks until a signal is pending or timeout elapses, then clears the
// pending state. It reports whether a signal was consumed. A timeout of
// zero or less waits indefinitely, in which case a contended TrySignal is
// only seen on the next successful Signal.
func (w *Wakeup) Wait(timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.drainFlag() {
		w.pending = true
	}

	if !w.pending {
		var timedOut bool
		if timeout > 0 {
			t := time.AfterFunc(timeout, func() {
				w.mu.Lock()
				timedOut = true
				w.mu.Unlock()
				w.cond.Broadcast()
			})
			defer t.Stop()
		}
		for !w.pending && !timedOut {
			w.cond.Wait()
			if w.drainFlag() {
				w.pending = true
			}
		}
	}

	got := w.pending
	w.pending = false
	return got
}

// drainFlag consumes a parked TrySignal. Caller holds w.mu.
func (w *Wakeup) drainFlag() bool {
	select {
	case <-w.flagged:
		return true
	default:
		return false
	}
}
