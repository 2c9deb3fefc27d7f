package broker

import (
	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/metrics"
	"github.com/dshills/databroker/internal/pattern"
)

// Publish returns the id of the stream group/name, creating and announcing
// it first when it does not exist, and pushes pkg to it. Creating a stream
// binds every parked registration that matches it, so those receivers see
// this first push. self identifies the caller for self-suppression and may
// be nil. flags only apply to a newly created stream.
func (b *Broker) Publish(group, name string, pkg data.Package, self Receiver, flags data.Flags) data.StreamID {
	realtime := false
	b.elementsMu.Lock()
	e, fresh := b.findOrCreateLocked(pattern.Key{Group: group, Name: name}, flags, &realtime)
	b.elementsMu.Unlock()

	if fresh {
		b.announce(e)
	}
	if realtime {
		b.kickRealtime()
	}
	b.pushElement(e, pkg, self)
	return e.info.ID
}

// Push stores pkg as the latest value of stream id and delivers it. Sync
// receivers other than self are called before Push returns; async
// receivers are called from the dispatch goroutine. It returns id, or zero
// if the stream does not exist.
func (b *Broker) Push(id data.StreamID, pkg data.Package, self Receiver) data.StreamID {
	e := b.element(id)
	if e == nil {
		return 0
	}
	b.pushElement(e, pkg, self)
	return id
}

// pushElement implements Push for a resolved element. No broker lock is
// held while receivers run.
func (b *Broker) pushElement(e *element, pkg data.Package, self Receiver) {
	var producer any
	if self != nil {
		producer = self
	}
	e.store(pkg, producer)
	b.dirty.Mark(e)
	b.pushes.Add(1)
	b.metrics.Push()

	subs, conns := e.snapshot()
	for _, s := range subs {
		if !s.live() || sameIdentity(s.receiver, producer) {
			continue
		}
		b.deliver(s, e.info, pkg.Clone(), metrics.ModeSync)
	}

	if len(conns) > 0 {
		b.propagate(pkg, conns)
	}

	b.wakeup.TrySignal()
}

// deliver runs one receiver callback through the executor.
func (b *Broker) deliver(s *subscription, info data.Info, pkg data.Package, mode string) {
	b.exec.Run(s.id, func() {
		s.receiver.Receive(info, pkg, s.param)
	})
	b.deliveries.Add(1)
	b.metrics.Delivered(mode)
}

// propagate copies connected items of src into their destinations and
// pushes each destination once.
func (b *Broker) propagate(src data.Package, conns []*connection) {
	var order []*element
	staged := make(map[*element]*data.Package)

	for _, c := range conns {
		v, ok := c.source(src)
		if !ok {
			continue
		}
		dst, ok := staged[c.to]
		if !ok {
			p := c.to.front()
			dst = &p
			staged[c.to] = dst
			order = append(order, c.to)
		}
		c.apply(dst, v)
	}

	for _, e := range order {
		b.pushElement(e, *staged[e], nil)
	}
}
