// Package broker implements an in-process publish/subscribe data broker.
//
// Producers publish named streams identified by a group and a data name and
// push data.Package values into them. Receivers subscribe with one of four
// delivery disciplines:
//
//   - Sync: called inside Push, before it returns, in registration order.
//   - Async: called later from the dispatch goroutine with the latest value;
//     several pushes between two drains coalesce into one delivery.
//   - Timed: called from StepTimer when the receiver's period has elapsed
//     on the timer's logical clock.
//   - Triggered: called from Fire.
//
// Group and name patterns may contain "*" and "?" wildcards. A registration
// whose pattern contains a wildcard, or whose target does not exist yet, is
// parked and bound whenever a matching stream, timer or trigger appears.
// Wildcard registrations stay parked forever so later streams bind too.
//
// # Streams
//
// Each stream keeps its last two packages in a two-slot arena. Push writes
// the inactive slot and flips the active index, so readers always see a
// complete package.
//
// Item-to-item connections copy a single item of a source stream into a
// destination stream on every push to the source, then push the
// destination. Connections that would close a cycle are rejected.
//
// # Reserved streams
//
//	data_broker/newStream       announcement of every new stream
//	data_broker/timers/<timer>  the clock of each timer, item "t"
//	_MESSAGES_/fatal ... debug  broker messages, item "message"
//
// The timer named RealtimeTimer is created by New and, while the broker
// runs and anything is registered on it, is stepped from its own goroutine
// with the elapsed wall-clock milliseconds.
//
// # Reentrancy
//
// No broker lock is held while a Producer or Receiver runs. Callbacks may
// push, register and unregister freely.
//
// # Example
//
//	b := broker.New(broker.WithLogger(logger))
//	if err := b.Start(); err != nil {
//		return err
//	}
//	defer b.Stop()
//
//	id := b.Publish("robot", "imu", data.Package{}, nil, data.FlagRead)
//	b.RegisterAsync(logReceiver, "robot", "*", 0)
//
//	var p data.Package
//	data.Add(&p, "yaw", 0.25)
//	b.Push(id, p, nil)
package broker
