package data

import "strings"

// Package is an ordered list of named values.
//
// Names are not required to be unique; lookups by name return the first
// match. The zero Package is empty and ready to use.
type Package struct {
	items []Value
}

// NewPackage creates a package holding copies of the given values.
func NewPackage(values ...Value) Package {
	p := Package{items: make([]Value, len(values))}
	copy(p.items, values)
	return p
}

// Len returns the number of items.
func (p Package) Len() int {
	return len(p.items)
}

// Empty reports whether the package has no items.
func (p Package) Empty() bool {
	return len(p.items) == 0
}

// Clear removes all items, keeping allocated capacity.
func (p *Package) Clear() {
	p.items = p.items[:0]
}

// Append adds a value at the end.
func (p *Package) Append(v Value) {
	p.items = append(p.items, v)
}

// Items returns a copy of the item list.
func (p Package) Items() []Value {
	out := make([]Value, len(p.items))
	copy(out, p.items)
	return out
}

// Item returns the value at index i.
func (p Package) Item(i int) (Value, bool) {
	if i < 0 || i >= len(p.items) {
		return Value{}, false
	}
	return p.items[i], true
}

// Lookup returns the first value named name.
func (p Package) Lookup(name string) (Value, bool) {
	return p.Item(p.IndexOf(name))
}

// IndexOf returns the index of the first item named name, or -1.
func (p Package) IndexOf(name string) int {
	for i := range p.items {
		if p.items[i].name == name {
			return i
		}
	}
	return -1
}

// Replace stores v at index i, keeping v's own name. It fails when i is out
// of range.
func (p *Package) Replace(i int, v Value) bool {
	if i < 0 || i >= len(p.items) {
		return false
	}
	p.items[i] = v
	return true
}

// Kind returns the kind of the named item, or KindInvalid.
func (p Package) Kind(name string) Kind {
	v, _ := p.Lookup(name)
	return v.kind
}

// Clone returns a deep copy.
func (p Package) Clone() Package {
	return NewPackage(p.items...)
}

// CopyFrom overwrites p with the contents of src, reusing p's storage when
// it is large enough.
func (p *Package) CopyFrom(src Package) {
	if cap(p.items) < len(src.items) {
		p.items = make([]Value, len(src.items))
	} else {
		p.items = p.items[:len(src.items)]
	}
	copy(p.items, src.items)
}

// Equal reports whether both packages hold equal items in the same order.
func (p Package) Equal(o Package) bool {
	if len(p.items) != len(o.items) {
		return false
	}
	for i := range p.items {
		if !p.items[i].Equal(o.items[i]) {
			return false
		}
	}
	return true
}

// String renders the package as {name=value ...}.
func (p Package) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range p.items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.name)
		sb.WriteByte('=')
		sb.WriteString(v.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Add appends a new item named name holding v.
func Add[T Scalar](p *Package, name string, v T) {
	p.Append(NewValue(name, v))
}

// Get returns the first item named name as T.
func Get[T Scalar](p Package, name string) (T, bool) {
	return GetAt[T](p, p.IndexOf(name))
}

// GetAt returns the item at index i as T.
func GetAt[T Scalar](p Package, i int) (T, bool) {
	v, ok := p.Item(i)
	if !ok {
		var zero T
		return zero, false
	}
	return As[T](v)
}

// Put overwrites the first item named name. It fails, leaving p unchanged,
// when the name is unknown or T does not match the item's kind.
func Put[T Scalar](p *Package, name string, v T) bool {
	return PutAt(p, p.IndexOf(name), v)
}

// PutAt overwrites the item at index i.
func PutAt[T Scalar](p *Package, i int, v T) bool {
	if i < 0 || i >= len(p.items) {
		return false
	}
	return Set(&p.items[i], v)
}
