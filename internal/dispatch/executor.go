package dispatch

import (
	"runtime/debug"
	"time"
)

// Result describes one callback execution.
type Result struct {
	// Panicked is true if the callback panicked.
	Panicked bool

	// PanicValue is the recovered value when Panicked is true.
	PanicValue any

	// PanicStack is the stack captured at the panic site.
	PanicStack []byte

	// Duration is how long the callback ran.
	Duration time.Duration
}

// PanicHandler is called when a callback panics. It receives the label
// passed to Run, the panic value and the stack trace.
type PanicHandler func(label any, panicValue any, stack []byte)

func defaultPanicHandler(label any, panicValue any, stack []byte) {}

// Executor runs callbacks with panic recovery so one faulty subscriber
// cannot take down the goroutine delivering to it.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler sets the handler invoked after a recovered panic.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{panicHandler: defaultPanicHandler}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run calls fn, recovering any panic. label identifies the callback to the
// panic handler.
func (e *Executor) Run(label any, fn func()) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			func() {
				defer func() { _ = recover() }()
				e.panicHandler(label, r, stack)
			}()
		}
	}()

	fn()
	return result
}
