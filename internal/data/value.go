package data

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	// KindInvalid is the zero Kind; a Value of this kind holds nothing.
	KindInvalid Kind = iota
	// KindInt32 holds an int32.
	KindInt32
	// KindUint32 holds a uint32.
	KindUint32
	// KindInt64 holds an int64.
	KindInt64
	// KindUint64 holds a uint64.
	KindUint64
	// KindFloat32 holds a float32.
	KindFloat32
	// KindFloat64 holds a float64.
	KindFloat64
	// KindBool holds a bool.
	KindBool
	// KindString holds a string.
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// IsNumeric reports whether the kind is an integer or floating point kind.
func (k Kind) IsNumeric() bool {
	return k >= KindInt32 && k <= KindFloat64
}

// Scalar is the set of Go types a Value can carry.
type Scalar interface {
	int32 | uint32 | int64 | uint64 | float32 | float64 | bool | string
}

// Value is a named tagged union over the Scalar types.
//
// The zero Value has KindInvalid. Typed access only succeeds when the
// requested type matches the stored kind; there is no implicit coercion.
type Value struct {
	name string
	kind Kind
	bits uint64 // integer, float and bool payloads
	str  string
}

// NewValue creates a named value holding v.
func NewValue[T Scalar](name string, v T) Value {
	val := Value{name: name, kind: kindOf[T]()}
	val.store(any(v))
	return val
}

// kindOf returns the Kind matching the type parameter.
func kindOf[T Scalar]() Kind {
	var zero T
	switch any(zero).(type) {
	case int32:
		return KindInt32
	case uint32:
		return KindUint32
	case int64:
		return KindInt64
	case uint64:
		return KindUint64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	case bool:
		return KindBool
	case string:
		return KindString
	}
	return KindInvalid
}

// Name returns the item name.
func (v Value) Name() string {
	return v.name
}

// Kind returns the stored kind.
func (v Value) Kind() Kind {
	return v.kind
}

// WithName returns a copy of v carrying a different name.
func (v Value) WithName(name string) Value {
	v.name = name
	return v
}

// As returns the payload as T. The second result is false when T does not
// match the stored kind.
func As[T Scalar](v Value) (T, bool) {
	var zero T
	if v.kind == KindInvalid || v.kind != kindOf[T]() {
		return zero, false
	}
	out, ok := v.load().(T)
	return out, ok
}

// Set replaces the payload with x. It fails without modifying v when T
// does not match the stored kind.
func Set[T Scalar](v *Value, x T) bool {
	if v == nil || v.kind == KindInvalid || v.kind != kindOf[T]() {
		return false
	}
	v.store(any(x))
	return true
}

// Interface returns the payload as an untyped Go value, or nil for an
// invalid Value.
func (v Value) Interface() any {
	if v.kind == KindInvalid {
		return nil
	}
	return v.load()
}

// Equal reports whether both values share name, kind and payload.
func (v Value) Equal(o Value) bool {
	return v.name == o.name && v.kind == o.kind && v.bits == o.bits && v.str == o.str
}

// String renders the payload for display.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindInvalid:
		return "<invalid>"
	default:
		return fmt.Sprint(v.load())
	}
}

func (v *Value) store(x any) {
	v.str = ""
	switch t := x.(type) {
	case int32:
		v.bits = uint64(int64(t))
	case uint32:
		v.bits = uint64(t)
	case int64:
		v.bits = uint64(t)
	case uint64:
		v.bits = t
	case float32:
		v.bits = uint64(math.Float32bits(t))
	case float64:
		v.bits = math.Float64bits(t)
	case bool:
		v.bits = 0
		if t {
			v.bits = 1
		}
	case string:
		v.bits = 0
		v.str = t
	}
}

func (v Value) load() any {
	switch v.kind {
	case KindInt32:
		return int32(int64(v.bits))
	case KindUint32:
		return uint32(v.bits)
	case KindInt64:
		return int64(v.bits)
	case KindUint64:
		return v.bits
	case KindFloat32:
		return math.Float32frombits(uint32(v.bits))
	case KindFloat64:
		return math.Float64frombits(v.bits)
	case KindBool:
		return v.bits != 0
	case KindString:
		return v.str
	}
	return nil
}

// ValueOf wraps an untyped Go value. Plain int is stored as int64 and
// other non-Scalar types are rejected.
func ValueOf(name string, x any) (Value, bool) {
	switch t := x.(type) {
	case int32:
		return NewValue(name, t), true
	case uint32:
		return NewValue(name, t), true
	case int64:
		return NewValue(name, t), true
	case int:
		return NewValue(name, int64(t)), true
	case uint64:
		return NewValue(name, t), true
	case float32:
		return NewValue(name, t), true
	case float64:
		return NewValue(name, t), true
	case bool:
		return NewValue(name, t), true
	case string:
		return NewValue(name, t), true
	}
	return Value{}, false
}
