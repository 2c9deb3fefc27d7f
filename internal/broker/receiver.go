package broker

import (
	"fmt"
	"reflect"

	"github.com/dshills/databroker/internal/data"
)

// Receiver consumes stream data.
//
// Receivers are identified by interface equality, so the dynamic type must
// be comparable. Pointer types are the usual choice.
type Receiver interface {
	Receive(info data.Info, pkg data.Package, param int)
}

// Producer regenerates stream data when a timer asks for it. pkg holds the
// stream's current package and is pushed after Produce returns.
type Producer interface {
	Produce(info data.Info, pkg *data.Package, param int)
}

// FuncReceiver adapts a function to Receiver.
type FuncReceiver struct {
	fn func(info data.Info, pkg data.Package, param int)
}

// ReceiveFunc returns a Receiver calling fn. Each call returns a distinct
// identity.
func ReceiveFunc(fn func(info data.Info, pkg data.Package, param int)) *FuncReceiver {
	return &FuncReceiver{fn: fn}
}

// Receive calls the wrapped function.
func (r *FuncReceiver) Receive(info data.Info, pkg data.Package, param int) {
	r.fn(info, pkg, param)
}

// FuncProducer adapts a function to Producer.
type FuncProducer struct {
	fn func(info data.Info, pkg *data.Package, param int)
}

// ProduceFunc returns a Producer calling fn.
func ProduceFunc(fn func(info data.Info, pkg *data.Package, param int)) *FuncProducer {
	return &FuncProducer{fn: fn}
}

// Produce calls the wrapped function.
func (p *FuncProducer) Produce(info data.Info, pkg *data.Package, param int) {
	p.fn(info, pkg, param)
}

// checkIdentity verifies that v can be stored and later compared with ==.
func checkIdentity(v any) error {
	if v == nil {
		return ErrNilReceiver
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return ErrNilReceiver
		}
	}
	if !rv.Type().Comparable() {
		return fmt.Errorf("%w: %T", ErrUncomparableReceiver, v)
	}
	return nil
}

// sameIdentity compares a stored identity with one supplied by a caller.
// Values of different dynamic types are never equal and never panic.
func sameIdentity(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
