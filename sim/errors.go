package sim

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped is returned by Run when Stop was called before the queue drained.
var ErrStopped = errors.New("simulation stopped")

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("simulation already run")

// ConfigurationError reports a malformed network or plan. It is raised
// before the run starts.
type ConfigurationError struct {
	Entity string // e.g. `link "l1"` or `plan "p3"`
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Entity, e.Reason)
}

func configErrorf(entity, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTimeError reports an attempt to schedule a record before the time
// of the last popped record.
type InvalidTimeError struct {
	Due float64
	Now float64
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("cannot schedule at %v: simulation time is already %v", e.Due, e.Now)
}

// CapacityInvariantViolation reports a link whose occupancy or departure
// spacing left the bounds of its capacities.
type CapacityInvariantViolation struct {
	LinkID string
	Time   float64
	Detail string
}

func (e *CapacityInvariantViolation) Error() string {
	return fmt.Sprintf("capacity invariant violated on link %s at %v: %s", e.LinkID, e.Time, e.Detail)
}

// StalledError reports a run that ran out of scheduled records while
// vehicles were still waiting for space on full links. Nothing can move
// again without outside intervention.
type StalledError struct {
	Time     float64
	Vehicles []string // blocked vehicles, sorted
	Links    []string // full links they wait to enter, sorted
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("simulation stalled at %v: %d vehicles blocked waiting on links [%s]",
		e.Time, len(e.Vehicles), strings.Join(e.Links, ", "))
}
