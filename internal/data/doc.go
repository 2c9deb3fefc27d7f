// Package data defines the values exchanged through the broker.
//
// A Package is a flat, ordered list of named Values. Each Value holds
// exactly one scalar (int32, uint32, int64, uint64, float32, float64, bool
// or string) and typed access fails instead of coercing:
//
//	var pkg data.Package
//	data.Add(&pkg, "x", 1.5)
//	data.Add(&pkg, "valid", true)
//
//	x, ok := data.Get[float64](pkg, "x")    // 1.5, true
//	_, ok = data.Get[int32](pkg, "x")       // 0, false
//	ok = data.Put(&pkg, "x", int32(3))      // false, pkg unchanged
//
// Info carries the identity of a stream (id, group, name and Flags).
// Mapping binds item names to Go variables.
package data
