package broker

import (
	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/metrics"
)

// asyncDelivery is one async callback collected during a drain.
type asyncDelivery struct {
	sub      *subscription
	info     data.Info
	pkg      data.Package
	producer any
}

// dispatchLoop drains the dirty set until Stop. It sleeps on the wakeup,
// bounded by the configured idle time, whenever nothing is dirty.
func (b *Broker) dispatchLoop() {
	defer b.wg.Done()
	b.dispatchRunning.Store(true)
	defer b.dispatchRunning.Store(false)

	var batch []asyncDelivery
	for !b.stopping.Load() {
		batch = b.collect(batch[:0])
		for _, d := range batch {
			if !d.sub.live() || sameIdentity(d.sub.receiver, d.producer) {
				continue
			}
			b.deliver(d.sub, d.info, d.pkg.Clone(), metrics.ModeAsync)
		}
		clear(batch)

		if b.dirty.Len() == 0 {
			b.wakeup.Wait(b.cfg.dispatchIdle)
		}
	}
}

// collect swaps the dirty set and snapshots the latest package and async
// subscribers of every dirty element.
func (b *Broker) collect(batch []asyncDelivery) []asyncDelivery {
	dirty := b.dirty.Swap()
	if len(dirty) == 0 {
		return batch
	}
	b.dispatchCycles.Add(1)
	b.metrics.DispatchCycle()

	for _, e := range dirty {
		subs := e.asyncSnapshot()
		if len(subs) == 0 {
			continue
		}
		pkg, producer := e.latest()
		for _, s := range subs {
			batch = append(batch, asyncDelivery{sub: s, info: e.info, pkg: pkg, producer: producer})
		}
	}
	return batch
}
