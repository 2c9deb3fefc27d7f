package broker

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/data"
)

// connection copies one item of the element it is attached to into an
// item of another element. Indices are caches; the item names are the
// source of truth.
type connection struct {
	to       *element
	fromItem string
	toItem   string
	fromIdx  atomic.Int64
	toIdx    atomic.Int64
}

// source returns the connected item of src.
func (c *connection) source(src data.Package) (data.Value, bool) {
	idx := int(c.fromIdx.Load())
	v, ok := src.Item(idx)
	if !ok || v.Name() != c.fromItem {
		idx = src.IndexOf(c.fromItem)
		if v, ok = src.Item(idx); !ok {
			return data.Value{}, false
		}
		c.fromIdx.Store(int64(idx))
	}
	return v, true
}

// apply stores v into dst under the destination item's name. A missing
// destination item is appended.
func (c *connection) apply(dst *data.Package, v data.Value) {
	v = v.WithName(c.toItem)
	idx := int(c.toIdx.Load())
	cur, ok := dst.Item(idx)
	if !ok || cur.Name() != c.toItem {
		idx = dst.IndexOf(c.toItem)
		if idx < 0 {
			dst.Append(v)
			c.toIdx.Store(int64(dst.Len() - 1))
			return
		}
		c.toIdx.Store(int64(idx))
	}
	dst.Replace(idx, v)
}

// Connect wires item fromItem of stream fromGroup/fromName to item toItem of
// stream toGroup/toName. Both streams and items must exist. A connection
// that would make a stream feed itself, directly or through other
// connections, is rejected with ErrConnectionCycle.
func (b *Broker) Connect(fromGroup, fromName, fromItem, toGroup, toName, toItem string) error {
	from := b.elementByKey(fromGroup, fromName)
	if from == nil {
		b.EmitError("could not find from stream: %s/%s", fromGroup, fromName)
		return fmt.Errorf("connect from %s/%s: %w", fromGroup, fromName, ErrStreamNotFound)
	}
	to := b.elementByKey(toGroup, toName)
	if to == nil {
		b.EmitError("could not find to stream: %s/%s", toGroup, toName)
		return fmt.Errorf("connect to %s/%s: %w", toGroup, toName, ErrStreamNotFound)
	}

	fromIdx := from.front().IndexOf(fromItem)
	if fromIdx < 0 {
		return fmt.Errorf("connect from %s/%s item %q: %w", fromGroup, fromName, fromItem, ErrItemNotFound)
	}
	toIdx := to.front().IndexOf(toItem)
	if toIdx < 0 {
		return fmt.Errorf("connect to %s/%s item %q: %w", toGroup, toName, toItem, ErrItemNotFound)
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()

	if reaches(to, from) {
		return fmt.Errorf("connect %s to %s: %w", from.info, to.info, ErrConnectionCycle)
	}

	c := &connection{to: to, fromItem: fromItem, toItem: toItem}
	c.fromIdx.Store(int64(fromIdx))
	c.toIdx.Store(int64(toIdx))

	from.subMu.Lock()
	from.conns = append(from.conns, c)
	from.subMu.Unlock()

	b.metrics.SetConnections(int(b.connCount.Add(1)))
	b.logger.Debug("items connected",
		zap.String("from", from.info.String()+"."+fromItem),
		zap.String("to", to.info.String()+"."+toItem))
	return nil
}

// reaches reports whether target is reachable from start along
// connections, including start == target. Caller holds connMu.
func reaches(start, target *element) bool {
	seen := make(map[*element]bool)
	stack := []*element{start}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e == target {
			return true
		}
		if seen[e] {
			continue
		}
		seen[e] = true

		e.subMu.RLock()
		for _, c := range e.conns {
			stack = append(stack, c.to)
		}
		e.subMu.RUnlock()
	}
	return false
}

// Disconnect removes the first connection from fromGroup/fromName.fromItem
// to toGroup/toName.toItem. It reports whether one was removed.
func (b *Broker) Disconnect(fromGroup, fromName, fromItem, toGroup, toName, toItem string) bool {
	from := b.elementByKey(fromGroup, fromName)
	if from == nil {
		b.EmitError("could not find from stream: %s/%s", fromGroup, fromName)
		return false
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()

	from.subMu.Lock()
	removed := false
	for i, c := range from.conns {
		if c.fromItem == fromItem && c.toItem == toItem &&
			c.to.info.Group == toGroup && c.to.info.Name == toName {
			from.conns = append(from.conns[:i], from.conns[i+1:]...)
			removed = true
			break
		}
	}
	from.subMu.Unlock()

	if removed {
		b.metrics.SetConnections(int(b.connCount.Add(-1)))
	}
	return removed
}

// DisconnectTarget removes every connection feeding toGroup/toName.toItem
// and returns how many were removed.
func (b *Broker) DisconnectTarget(toGroup, toName, toItem string) int {
	b.elementsMu.RLock()
	elems := make([]*element, 0, len(b.byID))
	for _, e := range b.byID {
		elems = append(elems, e)
	}
	b.elementsMu.RUnlock()

	b.connMu.Lock()
	defer b.connMu.Unlock()

	removed := 0
	for _, e := range elems {
		e.subMu.Lock()
		kept := e.conns[:0]
		for _, c := range e.conns {
			if c.toItem == toItem && c.to.info.Group == toGroup && c.to.info.Name == toName {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		clear(e.conns[len(kept):])
		e.conns = kept
		e.subMu.Unlock()
	}

	if removed > 0 {
		b.metrics.SetConnections(int(b.connCount.Add(int64(-removed))))
	}
	return removed
}
