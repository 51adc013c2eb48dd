package resource

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/StochasticTinkr/resourcescope/errors"
)

// Handle tracks one acquired resource value and its release action.
//
// State only moves forward: Uninitialized -> Active -> Closed, or
// Uninitialized -> Closed when construction fails. A handle belongs to at
// most one Scope at a time; the relation is the owner pointer plus the slot
// the scope's table assigned, and the scope checks both before acting on it.
//
// Thread-safe. Callbacks handed a handle's value (release actions, acceptors,
// observers) must not call back into the same handle.
type Handle[V any] struct {
	value   V
	release ReleaseFunc[V]
	owner   *Scope
	name    string
	slot    Slot
	mu      sync.Mutex
	state   State
	// constructing is set while the constructor runs outside the lock.
	constructing bool
}

// Name returns the identifier assigned when the handle was registered.
func (h *Handle[V]) Name() string {
	return h.name
}

func (h *Handle[V]) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("%s(%s)", h.name, h.state)
}

// State returns the current lifecycle state.
func (h *Handle[V]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Owner returns the scope currently responsible for the handle, or nil.
func (h *Handle[V]) Owner() *Scope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

// Value returns the active value. It fails with an IllegalState error if the
// handle is uninitialized or closed.
func (h *Handle[V]) Value() (V, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateActive {
		var zero V
		return zero, errors.IllegalState(errors.PhaseRead, h.name, "handle is "+h.state.String())
	}
	return h.value, nil
}

// ValueOK returns the active value and true, or the zero value and false
// when the handle is uninitialized or closed.
func (h *Handle[V]) ValueOK() (V, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateActive {
		var zero V
		return zero, false
	}
	return h.value, true
}

// Close releases the resource. The first call detaches the handle from its
// scope and runs the release action, whose error is returned wrapped in a
// KindRelease error. Later calls do nothing and return nil.
func (h *Handle[V]) Close() error {
	return h.shutdown(nil)
}

func (h *Handle[V]) scopeClose(from *Scope) error {
	return h.shutdown(from)
}

// shutdown closes the handle. from is nil for an explicit Close, or the
// scope that already popped the handle during teardown; in that case the
// handle is skipped if it has meanwhile moved to another owner.
func (h *Handle[V]) shutdown(from *Scope) error {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return nil
	}

	owner := h.owner
	if from != nil && owner != from {
		h.mu.Unlock()
		return nil
	}
	if owner != nil && from == nil {
		owner.detach(h, h.slot)
	}

	value, hasValue := h.value, h.state == StateActive
	release := h.release

	var zero V
	h.owner = nil
	h.slot = Slot{}
	h.state = StateClosed
	h.value = zero
	h.mu.Unlock()

	var err error
	if hasValue && release != nil {
		if rerr := release(value); rerr != nil {
			err = errors.Release(h.name, rerr)
		}
	}

	// A handle torn down mid-construction held no value, so nothing was released.
	if owner != nil && hasValue {
		owner.notify(Event{Type: EventReleased, Handle: h.name, Err: err})
	}
	return err
}

// Transfer offers the active value to a while holding the handle lock, so it
// is atomic with Close and other transfers. If a accepts, the handle becomes
// Closed and leaves its scope without running the release action. Observers
// of the old scope are told after the lock is dropped.
func (h *Handle[V]) Transfer(a Acceptor[V]) bool {
	h.mu.Lock()

	if h.state != StateActive {
		name, state := h.name, h.state
		defer h.mu.Unlock()
		a.Absent(func() string {
			return fmt.Sprintf("handle %s is %s", name, state)
		})
		return false
	}

	if !h.accept(a) {
		h.mu.Unlock()
		return false
	}

	owner := h.owner
	if owner != nil {
		owner.detach(h, h.slot)
	}

	var zero V
	h.owner = nil
	h.slot = Slot{}
	h.state = StateClosed
	h.value = zero
	h.mu.Unlock()

	if owner != nil {
		owner.notify(Event{Type: EventTransferredOut, Handle: h.name})
	}
	return true
}

// accept runs a.Accept with h.mu held. A panicking acceptor leaves the
// handle untouched and unlocks it before the panic continues.
func (h *Handle[V]) accept(a Acceptor[V]) (ok bool) {
	completed := false
	defer func() {
		if !completed {
			h.mu.Unlock()
		}
	}()
	ok = a.Accept(h.value, h.release)
	completed = true
	return ok
}

// initialize runs construct and records the result. It reports false with a
// nil error if the handle was closed while construct was running; the
// produced value is released in that case.
func (h *Handle[V]) initialize(construct func() (V, error), release ReleaseFunc[V]) (bool, error) {
	h.mu.Lock()
	if h.state != StateUninitialized || h.constructing || h.release != nil {
		h.mu.Unlock()
		return false, errors.IllegalState(errors.PhaseConstruct, h.name, "handle already initialized")
	}
	h.release = release
	h.constructing = true
	log := Logger()
	if h.owner != nil {
		log = h.owner.logger()
	}
	h.mu.Unlock()

	value, err := h.construct(construct)

	h.mu.Lock()
	h.constructing = false

	if err != nil {
		// No value exists unless one was stored before construct failed.
		stored, hasValue := h.value, h.state == StateActive
		var zero V
		h.state = StateClosed
		h.value = zero
		h.mu.Unlock()
		if hasValue && release != nil {
			if rerr := release(stored); rerr != nil {
				log.Warn("release after failed construction",
					zap.String("handle", h.name),
					zap.Error(rerr))
			}
		}
		return false, errors.Construction(h.name, err)
	}

	if h.state == StateClosed {
		h.mu.Unlock()
		if release != nil {
			if rerr := release(value); rerr != nil {
				log.Warn("release of value constructed after close",
					zap.String("handle", h.name),
					zap.Error(rerr))
			}
		}
		return false, nil
	}

	h.state = StateActive
	h.value = value
	h.mu.Unlock()
	return true, nil
}

// construct runs fn. If fn panics the handle is closed, since no value can
// ever be stored, and the panic continues.
func (h *Handle[V]) construct(fn func() (V, error)) (V, error) {
	defer func() {
		if p := recover(); p != nil {
			h.mu.Lock()
			h.constructing = false
			h.state = StateClosed
			h.mu.Unlock()
			panic(p)
		}
	}()
	return fn()
}

// abandon drops h from s after construction produced no usable value.
func (h *Handle[V]) abandon(s *Scope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.owner == s {
		s.detach(h, h.slot)
	}
	h.owner = nil
	h.slot = Slot{}
}

// removeFrom detaches h from s without releasing it.
func (h *Handle[V]) removeFrom(s *Scope) error {
	h.mu.Lock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.mu.Unlock()
		return errors.IllegalState(errors.PhaseRemove, s.name, "scope is closed")
	}
	if h.owner != s || !s.table.unlink(h.slot, h) {
		s.mu.Unlock()
		h.mu.Unlock()
		return errors.New(errors.PhaseRemove, errors.KindIllegalArgument).
			Resource(h.name).
			Detail("handle is not owned by scope %q", s.name).
			Build()
	}
	s.mu.Unlock()

	h.owner = nil
	h.slot = Slot{}
	h.mu.Unlock()

	s.notify(Event{Type: EventRemoved, Handle: h.name})
	return nil
}

// moveTo makes s the owner of h, detaching it from its previous scope.
// It is a no-op when s already owns h.
func (h *Handle[V]) moveTo(s *Scope) error {
	h.mu.Lock()

	if h.owner == s {
		h.mu.Unlock()
		return nil
	}
	if h.state != StateActive {
		h.mu.Unlock()
		return errors.IllegalState(errors.PhaseTransfer, h.name, "cannot take ownership of "+h.state.String()+" handle")
	}

	slot, err := s.attach(h)
	if err != nil {
		h.mu.Unlock()
		return err
	}

	prev := h.owner
	if prev != nil {
		prev.detach(h, h.slot)
	}
	h.owner = s
	h.slot = slot
	h.mu.Unlock()

	if prev != nil {
		prev.notify(Event{Type: EventTransferredOut, Handle: h.name})
	}
	s.notify(Event{Type: EventTransferredIn, Handle: h.name})
	return nil
}
