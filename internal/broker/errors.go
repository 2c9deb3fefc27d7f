package broker

import "errors"

// Sentinel errors for the broker.
var (
	// ErrAlreadyRunning is returned when Start is called on a running broker.
	ErrAlreadyRunning = errors.New("broker is already running")

	// ErrNotRunning is returned when Stop is called on a stopped broker.
	ErrNotRunning = errors.New("broker is not running")

	// ErrStreamNotFound is returned when a group/name pair has no stream.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrItemNotFound is returned when a package has no item of that name.
	ErrItemNotFound = errors.New("item not found")

	// ErrConnectionCycle is returned when a connection would close a cycle.
	ErrConnectionCycle = errors.New("connection would create a cycle")

	// ErrNilReceiver is returned when a nil receiver or producer is registered.
	ErrNilReceiver = errors.New("receiver cannot be nil")

	// ErrUncomparableReceiver is returned when a receiver's dynamic type
	// cannot be compared for identity.
	ErrUncomparableReceiver = errors.New("receiver type is not comparable")

	// ErrWildcardProducer is returned when a timed producer names a pattern.
	ErrWildcardProducer = errors.New("producer stream name cannot contain wildcards")
)
