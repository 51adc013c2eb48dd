package resource

// ReleaseFunc returns a resource value to the environment.
type ReleaseFunc[V any] func(V) error

// State is the lifecycle state of a handle.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReleased
	EventRemoved
	EventTransferredIn
	EventTransferredOut
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventReleased:
		return "released"
	case EventRemoved:
		return "removed"
	case EventTransferredIn:
		return "transferred-in"
	case EventTransferredOut:
		return "transferred-out"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event within a scope.
type Event struct {
	// Err is the release error for EventReleased, nil otherwise.
	Err    error
	Scope  string
	Handle string
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers run synchronously and must not call back into the handle
// named by the event.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
// Function values are not comparable, so an ObserverFunc cannot be passed
// to Unsubscribe.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Member is a handle tracked by a Scope, independent of its value type.
// Only handles created by this package implement it.
type Member interface {
	Name() string
	State() State
	Owner() *Scope
	Close() error

	scopeClose(from *Scope) error
	removeFrom(s *Scope) error
}

// Resource is the handle contract seen by transfer operations.
// *Handle implements it; foreign implementations can be adopted into a
// scope through TakeOwnership, which hands them an Acceptor.
type Resource[V any] interface {
	Value() (V, error)
	ValueOK() (V, bool)
	Close() error

	// Transfer offers the live value and its release action to a.
	// If a accepts, the source gives up ownership without releasing.
	// Sources without a live value call a.Absent instead.
	Transfer(a Acceptor[V]) bool
}

// Acceptor is the type-erased sink fed by Resource.Transfer.
type Acceptor[V any] interface {
	// Accept reports whether ownership of value (and the duty to call
	// release) has been taken.
	Accept(value V, release ReleaseFunc[V]) bool

	// Absent is called instead of Accept when the source has no live value.
	Absent(reason func() string)
}
