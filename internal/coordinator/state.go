package coordinator

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mrz1836/cadena/internal/contract"
)

// State is a step in the lifecycle of a transaction request.
type State string

// Request states.
const (
	Idle                 State = "idle"
	Validating           State = "validating"
	Submitting           State = "submitting"
	AwaitingConfirmation State = "awaiting_confirmation"
	Confirmed            State = "confirmed"
	Failed               State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed
}

//nolint:gochecknoglobals // transition table
var transitions = map[State][]State{
	Idle:                 {Validating},
	Validating:           {Submitting, Failed},
	Submitting:           {AwaitingConfirmation, Failed},
	AwaitingConfirmation: {Confirmed, Failed},
}

// CanTransition reports whether a request may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is reported to the Observer each time a request changes state.
type Transition struct {
	RequestID uuid.UUID
	Kind      contract.TxKind
	From      State
	To        State
	Hash      common.Hash // zero until submitted
	Err       error       // set when To is Failed
	At        time.Time
}

// Observer receives every state transition of every request. Calls for
// concurrent requests may arrive concurrently.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// OnTransition calls f(t).
func (f ObserverFunc) OnTransition(t Transition) {
	f(t)
}
