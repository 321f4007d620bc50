// Package trace records event streams for replay and derives per-trip
// records and travel statistics from them.
package trace

import (
	"fmt"
	"strings"
	"sync"

	"github.com/trafficsim/qsim/sim/events"
)

// TraceLevel controls what a Log keeps.
type TraceLevel string

const (
	// TraceLevelNone disables recording (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTrips keeps only the events needed to rebuild trips.
	TraceLevelTrips TraceLevel = "trips"
	// TraceLevelEvents keeps every event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelTrips:  true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

var tripKinds = []events.Kind{events.KindDeparture, events.KindLinkEntered, events.KindArrival, events.KindStuck}

// Log is an in-memory event handler that keeps the stream in delivery order.
type Log struct {
	mu     sync.Mutex
	level  TraceLevel
	events []events.Event
}

// NewLog creates a Log recording at the given level.
func NewLog(level TraceLevel) *Log {
	return &Log{level: level, events: make([]events.Event, 0)}
}

func (l *Log) String() string { return "trace-log" }

// Kinds restricts delivery at the trips level; nil accepts everything.
func (l *Log) Kinds() []events.Kind {
	if l.level == TraceLevelTrips {
		return tripKinds
	}
	return nil
}

// HandleEvent appends e.
func (l *Log) HandleEvent(e events.Event) error {
	if l.level == TraceLevelNone || l.level == "" {
		return nil
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

// Reset drops everything recorded.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Text renders the log one canonical event per line.
func (l *Log) Text() string {
	var b strings.Builder
	for _, e := range l.Events() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Replay feeds evs into mgr through a full processing cycle. Replaying the
// same events twice yields the same handler results.
func Replay(mgr events.Manager, evs []events.Event) error {
	if err := mgr.InitProcessing(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	for i, e := range evs {
		if err := mgr.ProcessEvent(e); err != nil {
			ferr := mgr.FinishProcessing()
			if ferr != nil {
				return fmt.Errorf("replay event %d: %w (finish: %v)", i, err, ferr)
			}
			return fmt.Errorf("replay event %d: %w", i, err)
		}
	}
	if err := mgr.FinishProcessing(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}
