package data

// Mapping binds package items to Go variables so a producer or receiver can
// move a whole package in and out of its own state in one call.
//
//	var x, y float64
//	var m data.Mapping
//	data.Bind(&m, "x", &x)
//	data.Bind(&m, "y", &y)
//	m.Write(&pkg) // creates x and y on first use
//	m.Read(pkg)   // copies pkg values back into x and y
type Mapping struct {
	bindings []binder
}

type binder interface {
	read(p Package) bool
	write(p *Package) bool
}

type binding[T Scalar] struct {
	name  string
	ptr   *T
	index int
}

// Bind adds a binding between the item name and ptr.
func Bind[T Scalar](m *Mapping, name string, ptr *T) {
	m.bindings = append(m.bindings, &binding[T]{name: name, ptr: ptr, index: -1})
}

// Len returns the number of bindings.
func (m *Mapping) Len() int {
	return len(m.bindings)
}

// Clear removes all bindings.
func (m *Mapping) Clear() {
	m.bindings = nil
}

// Read copies every bound item from p into its variable. It returns false
// if any item is missing or has a different kind; the remaining bindings
// are still read.
func (m *Mapping) Read(p Package) bool {
	ok := true
	for _, b := range m.bindings {
		if !b.read(p) {
			ok = false
		}
	}
	return ok
}

// Write stores every bound variable into p, appending items that do not
// exist yet.
func (m *Mapping) Write(p *Package) bool {
	ok := true
	for _, b := range m.bindings {
		if !b.write(p) {
			ok = false
		}
	}
	return ok
}

// resolve returns the cached index when it still points at the bound name,
// otherwise it looks the name up again.
func (b *binding[T]) resolve(p Package) int {
	if v, ok := p.Item(b.index); ok && v.name == b.name {
		return b.index
	}
	b.index = p.IndexOf(b.name)
	return b.index
}

func (b *binding[T]) read(p Package) bool {
	idx := b.resolve(p)
	v, ok := GetAt[T](p, idx)
	if !ok {
		return false
	}
	*b.ptr = v
	return true
}

func (b *binding[T]) write(p *Package) bool {
	idx := b.resolve(*p)
	if idx < 0 {
		Add(p, b.name, *b.ptr)
		b.index = p.Len() - 1
		return true
	}
	return PutAt(p, idx, *b.ptr)
}
