// Package agenterr defines the error taxonomy shared by every runtime
// component: a small set of abstract kinds (invalid request, invalid state
// transition, schema validation, plugin lookup failure, stream failure,
// workflow failure, cooperative cancellation, dispatch timeout), each
// carrying the component/action/message/cause shape used throughout the
// codebase.
package agenterr

import "fmt"

// Kind identifies one of the abstract error categories. Kind is used for
// dispatch (Is walks the chain of *Error values and compares their Kind),
// never compared directly against a string elsewhere.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindInvalidTransition Kind = "invalid_transition"
	KindSchemaValidation  Kind = "schema_validation"
	KindPluginNotFound    Kind = "plugin_not_found"
	KindStream            Kind = "stream_error"
	KindWorkflow          Kind = "workflow_error"
	KindCancelled         Kind = "cancelled"
	KindDispatchTimeout   Kind = "dispatch_timeout"
)

// Error is the common shape for every taxonomy member: component + action
// identify where the error originated, message is human-readable, Err is
// the wrapped cause (may be nil).
type Error struct {
	Kind      Kind
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, component, action, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Action: action, Message: message, Err: err}
}

func InvalidRequest(component, action, message string, err error) *Error {
	return newErr(KindInvalidRequest, component, action, message, err)
}

func InvalidTransition(component, action, message string, err error) *Error {
	return newErr(KindInvalidTransition, component, action, message, err)
}

func SchemaValidation(component, action, message string, err error) *Error {
	return newErr(KindSchemaValidation, component, action, message, err)
}

func PluginNotFound(component, action, message string, err error) *Error {
	return newErr(KindPluginNotFound, component, action, message, err)
}

func Stream(component, action, message string, err error) *Error {
	return newErr(KindStream, component, action, message, err)
}

func Workflow(component, action, message string, err error) *Error {
	return newErr(KindWorkflow, component, action, message, err)
}

func Cancelled(component, action, message string, err error) *Error {
	return newErr(KindCancelled, component, action, message, err)
}

func DispatchTimeout(component, action, message string, err error) *Error {
	return newErr(KindDispatchTimeout, component, action, message, err)
}

// Is reports whether err (or any error it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
