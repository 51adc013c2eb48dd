package resource

import (
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/StochasticTinkr/resourcescope/errors"
)

// Options configures a Scope.
type Options struct {
	// Logger overrides the package logger for this scope.
	Logger *zap.Logger
	// Name identifies the scope in errors, events and logs.
	Name string
	// Observers are subscribed before the scope is returned.
	Observers []Observer
}

// DefaultOptions returns default scope configuration.
func DefaultOptions() Options {
	return Options{
		Name: "scope",
	}
}

// Scope owns an ordered set of live handles and releases them in reverse
// registration order when closed. Thread-safe.
//
// User callbacks never run while the scope lock is held, so a release action
// may close or remove sibling handles of the scope being torn down.
type Scope struct {
	log       *zap.Logger
	name      string
	observers []Observer
	table     table
	seq       uint64
	obsMu     sync.RWMutex
	mu        sync.Mutex
	closed    bool
}

// NewScope creates an open scope with default options.
func NewScope() *Scope {
	return NewScopeWithOptions(DefaultOptions())
}

// NewScopeWithOptions creates an open scope with custom configuration.
func NewScopeWithOptions(opts Options) *Scope {
	name := opts.Name
	if name == "" {
		name = DefaultOptions().Name
	}
	s := &Scope{
		log:   opts.Logger,
		name:  name,
		table: newTable(),
	}
	s.observers = append(s.observers, opts.Observers...)
	return s
}

// Run executes fn with a fresh scope and closes the scope when fn returns,
// including on panic. Teardown failures are combined with fn's error.
func Run(fn func(*Scope) error) error {
	return RunWithOptions(DefaultOptions(), fn)
}

// RunWithOptions is Run with custom scope configuration.
func RunWithOptions(opts Options, fn func(*Scope) error) (err error) {
	s := NewScopeWithOptions(opts)
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s)
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Len returns the number of live handles.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.len()
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Handles returns a snapshot of the live handles in registration order.
func (s *Scope) Handles() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]Member, 0, s.table.len())
	s.table.each(func(m Member) bool {
		members = append(members, m)
		return true
	})
	return members
}

// Initialize registers a new resource with s. See InitializeNamed.
func Initialize[V any](s *Scope, construct func() (V, error), release ReleaseFunc[V]) (*Handle[V], error) {
	return InitializeNamed(s, "", construct, release)
}

// InitializeNamed registers a handle with s, then runs construct. The handle
// is tracked before construct runs so an acquired value always has an owner.
// If construct fails the handle is dropped from s and the error, wrapped in a
// KindConstruction error, is returned. release may be nil.
//
// An empty name is replaced by "<scope>#<n>".
func InitializeNamed[V any](s *Scope, name string, construct func() (V, error), release ReleaseFunc[V]) (*Handle[V], error) {
	h := &Handle[V]{}
	if err := enroll(s, h, name); err != nil {
		return nil, err
	}

	completed := false
	defer func() {
		// construct panicked
		if !completed {
			h.abandon(s)
		}
	}()
	usable, err := h.initialize(construct, release)
	completed = true
	if err != nil || !usable {
		h.abandon(s)
		if err == nil {
			err = errors.IllegalState(errors.PhaseRegister, h.name, "scope closed during construction")
		}
		return nil, err
	}

	s.notify(Event{Type: EventRegistered, Handle: h.name})
	return h, nil
}

// enroll names an unpublished handle and appends it to s.
func enroll[V any](s *Scope, h *Handle[V], name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.IllegalState(errors.PhaseRegister, s.name, "scope is closed")
	}
	s.seq++
	if name == "" {
		name = s.name + "#" + strconv.FormatUint(s.seq, 10)
	}
	h.name = name
	h.owner = s
	h.slot = s.table.insert(h)
	return nil
}

// Remove detaches m from s without releasing it; the caller becomes
// responsible for the resource. It fails with an IllegalState error if s is
// closed and with an IllegalArgument error if m is not in s.
func (s *Scope) Remove(m Member) error {
	if m == nil {
		return errors.IllegalArgument(errors.PhaseRemove, s.name, "nil handle")
	}
	return m.removeFrom(s)
}

// TakeOwnership makes s responsible for src.
//
// A *Handle already owned by s is returned unchanged. Other handles of this
// package move directly from their current scope into s. Foreign Resource
// implementations are drained through ReleaseTo with OwnershipReceiver, and
// the returned handle wraps the transferred value.
func TakeOwnership[V any](s *Scope, src Resource[V]) (*Handle[V], error) {
	if h, ok := src.(*Handle[V]); ok {
		if err := h.moveTo(s); err != nil {
			return nil, err
		}
		return h, nil
	}
	return ReleaseTo[V, *Handle[V]](src, OwnershipReceiver[V](s)).Value()
}

// OwnershipReceiver returns a receiver that registers the received value and
// release action as a new active handle of s and accepts with that handle.
// It fails the outcome if s is closed. Observers of s hear about the new
// handle once the source has let go of it.
func OwnershipReceiver[V any](s *Scope) Receiver[V, *Handle[V]] {
	return ownershipReceiver[V]{scope: s}
}

type ownershipReceiver[V any] struct {
	scope *Scope
}

func (r ownershipReceiver[V]) Receive(value V, release ReleaseFunc[V], out *Outcome[*Handle[V]]) {
	h := &Handle[V]{value: value, release: release, state: StateActive}
	if err := enroll(r.scope, h, ""); err != nil {
		_ = out.Fail(err)
		return
	}

	_ = out.Accept(h)
}

func (r ownershipReceiver[V]) settled(out *Outcome[*Handle[V]]) {
	if h, err := out.Value(); err == nil && out.Accepted() {
		r.scope.notify(Event{Type: EventTransferredIn, Handle: h.name})
	}
}

func (r ownershipReceiver[V]) NoValue(reason func() string, out *Outcome[*Handle[V]]) {
	FailNoValue(reason, out)
}

// Close releases every live handle, newest first. It is a no-op on a closed
// scope.
//
// Handles are popped one at a time and released without holding the scope
// lock. A failing or panicking release does not stop the loop. When any
// release failed, Close returns a KindTeardown error whose Cause is the
// first failure and whose Suppressed list holds the rest.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var combined error
	released := 0
	for {
		s.mu.Lock()
		m, ok := s.table.popBack()
		s.mu.Unlock()
		if !ok {
			break
		}
		released++
		combined = multierr.Append(combined, s.closeMember(m))
	}

	failures := multierr.Errors(combined)
	s.logger().Debug("scope closed",
		zap.String("scope", s.name),
		zap.Int("released", released),
		zap.Int("failed", len(failures)))

	if len(failures) == 0 {
		return nil
	}
	return errors.Teardown(s.name, failures)
}

func (s *Scope) closeMember(m Member) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("release panicked during teardown",
				zap.String("scope", s.name),
				zap.String("handle", m.Name()),
				zap.Any("panic", r))
			err = errors.Panic(errors.PhaseTeardown, m.Name(), r)
		}
	}()
	return m.scopeClose(s)
}

// attach inserts an existing handle into s.
func (s *Scope) attach(m Member) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Slot{}, errors.IllegalState(errors.PhaseTransfer, s.name, "scope is closed")
	}
	return s.table.insert(m), nil
}

// detach removes m from the table if slot still refers to it. It keeps
// working after Close so handles can leave a scope that is tearing down.
func (s *Scope) detach(m Member, slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.unlink(slot, m)
}

// Subscribe adds an observer for lifecycle events.
func (s *Scope) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Unsubscribe removes an observer.
func (s *Scope) Unsubscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, obs := range s.observers {
		if obs == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Scope) notify(e Event) {
	e.Scope = s.name
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, o := range observers {
		s.deliver(o, e)
	}
}

// deliver runs one observer. A panicking observer is logged and skipped so
// bookkeeping and releases still complete.
func (s *Scope) deliver(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Warn("observer panicked",
				zap.String("scope", s.name),
				zap.String("handle", e.Handle),
				zap.Stringer("event", e.Type),
				zap.Any("panic", r))
		}
	}()
	o.OnResourceEvent(e)
}

func (s *Scope) logger() *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return Logger()
}
