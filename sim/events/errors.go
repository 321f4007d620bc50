package events

import (
	"errors"
	"fmt"
)

// ErrNotProcessing is returned when an event is delivered to a manager that
// is not between InitProcessing and FinishProcessing.
var ErrNotProcessing = errors.New("events manager is not processing")

// ErrAlreadyProcessing is returned by InitProcessing on a manager that is
// already processing.
var ErrAlreadyProcessing = errors.New("events manager is already processing")

// TimeOrderError reports an event whose time is earlier than the previous
// event delivered by the same manager.
type TimeOrderError struct {
	Event    Event
	Previous float64
}

func (e *TimeOrderError) Error() string {
	return fmt.Sprintf("event %q is earlier than previous event time %v", e.Event.String(), e.Previous)
}

// HandlerDispatchError wraps a failure (returned error or recovered panic) of
// one handler while it processed one event.
type HandlerDispatchError struct {
	Handler string
	Event   Event
	Err     error
}

func (e *HandlerDispatchError) Error() string {
	return fmt.Sprintf("handler %s failed on event %q: %v", e.Handler, e.Event.String(), e.Err)
}

func (e *HandlerDispatchError) Unwrap() error { return e.Err }
