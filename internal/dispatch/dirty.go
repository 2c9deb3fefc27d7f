package dispatch

import "sync"

// DirtySet collects keys marked by producers and hands them to a consumer
// in batches. Marking the same key twice between two Swap calls records
// it once, in first-mark order.
type DirtySet[K comparable] struct {
	mu    sync.Mutex
	front []K
	back  []K
	seen  map[K]struct{}
}

// NewDirtySet creates an empty set.
func NewDirtySet[K comparable]() *DirtySet[K] {
	return &DirtySet[K]{seen: make(map[K]struct{})}
}

// Mark records k. It reports whether k was newly added.
func (d *DirtySet[K]) Mark(k K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[k]; ok {
		return false
	}
	d.seen[k] = struct{}{}
	d.front = append(d.front, k)
	return true
}

// Swap returns every key marked since the previous Swap and resets the
// set. The returned slice is owned by the set and is valid until the next
// Swap.
func (d *DirtySet[K]) Swap() []K {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.front, d.back = d.back[:0], d.front
	clear(d.seen)
	return d.back
}

// Len returns the number of keys currently marked.
func (d *DirtySet[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.front)
}
