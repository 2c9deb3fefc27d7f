// Package dispatch provides the primitives the broker's dispatch loop is
// built from: a panic-safe callback executor, a wakeup signal that never
// blocks its producers, and a double-buffered dirty set.
//
// None of these types know about streams or packages; the broker composes
// them.
package dispatch
