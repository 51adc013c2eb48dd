package resource

import (
	"sync"

	"github.com/StochasticTinkr/resourcescope/errors"
)

// OutcomeState is the disposition recorded in an Outcome.
type OutcomeState uint8

const (
	OutcomePending OutcomeState = iota
	OutcomeAccepted
	OutcomeRejected
	OutcomeFailed
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomePending:
		return "pending"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is a single-assignment result cell describing how a receiver
// disposed of a transferred resource. Exactly one of Accept, Reject or Fail
// succeeds; later assignments return an IllegalState error and leave the
// recorded result untouched.
type Outcome[R any] struct {
	value R
	err   error
	mu    sync.Mutex
	state OutcomeState
}

// NewOutcome returns a pending outcome.
func NewOutcome[R any]() *Outcome[R] {
	return &Outcome[R]{}
}

// Accept records that the receiver took ownership, producing value.
func (o *Outcome[R]) Accept(value R) error {
	return o.set(OutcomeAccepted, value, nil)
}

// Reject records that the receiver declined without error.
// The resource stays with its original owner.
func (o *Outcome[R]) Reject(value R) error {
	return o.set(OutcomeRejected, value, nil)
}

// Fail records that the receiver could not take the resource.
func (o *Outcome[R]) Fail(err error) error {
	if err == nil {
		return errors.IllegalArgument(errors.PhaseOutcome, "", "fail requires a non-nil error")
	}
	var zero R
	return o.set(OutcomeFailed, zero, err)
}

func (o *Outcome[R]) set(state OutcomeState, value R, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != OutcomePending {
		return errors.New(errors.PhaseOutcome, errors.KindIllegalState).
			Detail("outcome already %s", o.state).
			Build()
	}
	o.state = state
	o.value = value
	o.err = err
	return nil
}

// Value returns the accepted or rejected payload.
// A failed outcome returns its stored error; a pending one returns an
// IllegalState error.
func (o *Outcome[R]) Value() (R, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var zero R
	switch o.state {
	case OutcomePending:
		return zero, errors.IllegalState(errors.PhaseOutcome, "", "outcome not yet assigned")
	case OutcomeFailed:
		return zero, o.err
	default:
		return o.value, nil
	}
}

// State returns the current disposition.
func (o *Outcome[R]) State() OutcomeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Accepted reports whether ownership was taken.
func (o *Outcome[R]) Accepted() bool {
	return o.State() == OutcomeAccepted
}

// Err returns the failure, if any.
func (o *Outcome[R]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
