package banking

import (
	"errors"
	"fmt"
)

// State is the progress of one movement attempt.
type State string

const (
	StateStarted   State = "STARTED"
	StateValidated State = "VALIDATED"
	StateDebited   State = "DEBITED"
	StateCredited  State = "CREDITED"
	StateCommitted State = "COMMITTED"
	StateLogged    State = "LOGGED"
	StateAborted   State = "ABORTED"
)

// ErrIllegalTransition signals a bug in the engine's sequencing.
var ErrIllegalTransition = errors.New("illegal state transition")

// Deposits skip DEBITED and withdrawals skip CREDITED. Nothing that reached
// COMMITTED can abort.
var transitions = map[State][]State{
	StateStarted:   {StateValidated, StateAborted},
	StateValidated: {StateDebited, StateCredited, StateAborted},
	StateDebited:   {StateCredited, StateCommitted, StateAborted},
	StateCredited:  {StateCommitted, StateAborted},
	StateCommitted: {StateLogged},
}

func (s State) canMoveTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

type attempt struct {
	receipt Receipt
}

func (a *attempt) advance(next State) error {
	if !a.receipt.State.canMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.receipt.State, next)
	}
	a.receipt.State = next
	return nil
}

func (a *attempt) abort(err error) (Receipt, error) {
	if advErr := a.advance(StateAborted); advErr != nil {
		err = errors.Join(err, advErr)
	}
	return a.receipt, err
}
