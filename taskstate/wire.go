package taskstate

import "github.com/a2aproject/a2a-go/a2a"

// ToWire maps the internal State to the a2a-go protocol's TaskState. The two
// enums line up one-to-one: the A2A protocol itself defines submitted,
// working, input-required, auth-required, completed, failed, canceled,
// rejected and unknown, matching this package's State exactly.
func ToWire(s State) a2a.TaskState {
	switch s {
	case Submitted:
		return a2a.TaskStateSubmitted
	case Working:
		return a2a.TaskStateWorking
	case InputRequired:
		return a2a.TaskStateInputRequired
	case AuthRequired:
		return a2a.TaskStateAuthRequired
	case Completed:
		return a2a.TaskStateCompleted
	case Failed:
		return a2a.TaskStateFailed
	case Canceled:
		return a2a.TaskStateCanceled
	case Rejected:
		return a2a.TaskStateRejected
	default:
		return a2a.TaskStateUnknown
	}
}

// FromWire maps a wire-level TaskState back to the internal State, used
// when rehydrating a Task record read from an a2asrv.TaskStore.
func FromWire(s a2a.TaskState) State {
	switch s {
	case a2a.TaskStateSubmitted:
		return Submitted
	case a2a.TaskStateWorking:
		return Working
	case a2a.TaskStateInputRequired:
		return InputRequired
	case a2a.TaskStateAuthRequired:
		return AuthRequired
	case a2a.TaskStateCompleted:
		return Completed
	case a2a.TaskStateFailed:
		return Failed
	case a2a.TaskStateCanceled:
		return Canceled
	case a2a.TaskStateRejected:
		return Rejected
	default:
		return Unknown
	}
}
