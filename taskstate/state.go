// Package taskstate implements the task lifecycle state machine: the set of
// allowed states and the transition table between them. It mirrors the
// wire-level a2a.TaskState enum — see ToWire/FromWire in this package for
// the mapping at the protocol boundary.
package taskstate

import (
	"time"

	"github.com/agentcore/agentcore/agenterr"
)

// State is the internal lifecycle state of a task. Each of its values,
// including auth-required, rejected and unknown, has exactly one a2a-go
// TaskState counterpart, so ToWire/FromWire map them one-to-one.
type State string

const (
	Submitted     State = "submitted"
	Working       State = "working"
	InputRequired State = "input-required"
	AuthRequired  State = "auth-required"
	Completed     State = "completed"
	Failed        State = "failed"
	Canceled      State = "canceled"
	Rejected      State = "rejected"
	Unknown       State = "unknown"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Canceled, Rejected:
		return true
	}
	return false
}

// IsPaused reports whether the task is parked awaiting external input.
func (s State) IsPaused() bool {
	switch s {
	case InputRequired, AuthRequired:
		return true
	}
	return false
}

// transitions holds the adjacency list of §4.1. unknown has no outgoing
// edges and is never a destination, so it never appears as a key here.
var transitions = map[State]map[State]bool{
	Submitted:     {Working: true, Failed: true, Canceled: true, Rejected: true},
	Working:       {InputRequired: true, AuthRequired: true, Completed: true, Failed: true, Canceled: true, Rejected: true},
	InputRequired: {Working: true, Canceled: true, Rejected: true},
	AuthRequired:  {Working: true, Canceled: true, Rejected: true},
}

// Validate reports whether from -> to is an allowed transition.
func Validate(from, to State) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Transition is a single recorded state change.
type Transition struct {
	From      State
	To        State
	Timestamp time.Time
}

// Record validates and returns the Transition, or an InvalidTransition error
// if from -> to is not allowed. Callers append the returned Transition to
// their own per-task transition log; Record itself holds no state.
func Record(from, to State, now time.Time) (Transition, error) {
	if !Validate(from, to) {
		return Transition{}, agenterr.InvalidTransition(
			"TaskStateMachine", "Record",
			string(from)+" -> "+string(to)+" is not a valid transition", nil)
	}
	return Transition{From: from, To: to, Timestamp: now}, nil
}
