package resource

import (
	"github.com/StochasticTinkr/resourcescope/errors"
)

// Receiver decides whether to take ownership of a transferred resource.
//
// Receive must record exactly one of Accept, Reject or Fail on out. Accepting
// makes the receiver responsible for calling release. Rejecting or failing
// leaves the resource with its original owner.
//
// NoValue is called instead of Receive when the source has no live value
// (never initialized or already closed).
type Receiver[V, R any] interface {
	Receive(value V, release ReleaseFunc[V], out *Outcome[R])
	NoValue(reason func() string, out *Outcome[R])
}

// ReceiverFunc adapts a receive callback to the Receiver interface.
// Its NoValue reports failure through FailNoValue.
type ReceiverFunc[V, R any] func(value V, release ReleaseFunc[V], out *Outcome[R])

func (f ReceiverFunc[V, R]) Receive(value V, release ReleaseFunc[V], out *Outcome[R]) {
	f(value, release, out)
}

func (f ReceiverFunc[V, R]) NoValue(reason func() string, out *Outcome[R]) {
	FailNoValue(reason, out)
}

// FailNoValue is the default NoValue behavior: fail with a descriptive error.
func FailNoValue[R any](reason func() string, out *Outcome[R]) {
	_ = out.Fail(errors.NoValue("", reason()))
}

// Or downgrades the default NoValue failure of r into a rejection carrying
// fallback.
func Or[V, R any](r Receiver[V, R], fallback R) Receiver[V, R] {
	return OrElse(r, func(_ func() string, out *Outcome[R]) {
		_ = out.Reject(fallback)
	})
}

// OrElse replaces the NoValue behavior of r with handle.
func OrElse[V, R any](r Receiver[V, R], handle func(reason func() string, out *Outcome[R])) Receiver[V, R] {
	return &orElse[V, R]{Receiver: r, handle: handle}
}

type orElse[V, R any] struct {
	Receiver[V, R]
	handle func(reason func() string, out *Outcome[R])
}

func (r *orElse[V, R]) NoValue(reason func() string, out *Outcome[R]) {
	r.handle(reason, out)
}

// ReleaseTo offers the value held by src to r and returns r's verdict.
// Ownership moves only if r accepts; otherwise src is unchanged.
// A receiver that leaves the outcome pending is reported as failed.
func ReleaseTo[V, R any](src Resource[V], r Receiver[V, R]) *Outcome[R] {
	out := NewOutcome[R]()
	src.Transfer(&outcomeAcceptor[V, R]{receiver: r, out: out})
	if s, ok := r.(settledReceiver[R]); ok {
		s.settled(out)
	}
	return out
}

// settledReceiver is implemented by receivers that have follow-up work once
// src.Transfer has returned and no handle lock is held.
type settledReceiver[R any] interface {
	settled(out *Outcome[R])
}

type outcomeAcceptor[V, R any] struct {
	receiver Receiver[V, R]
	out      *Outcome[R]
}

func (a *outcomeAcceptor[V, R]) Accept(value V, release ReleaseFunc[V]) bool {
	a.receiver.Receive(value, release, a.out)
	a.settle()
	return a.out.Accepted()
}

func (a *outcomeAcceptor[V, R]) Absent(reason func() string) {
	a.receiver.NoValue(reason, a.out)
	a.settle()
}

func (a *outcomeAcceptor[V, R]) settle() {
	if a.out.State() == OutcomePending {
		_ = a.out.Fail(errors.IllegalState(errors.PhaseTransfer, "", "receiver did not record an outcome"))
	}
}
