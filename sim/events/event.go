package events

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant of an Event. Handlers declare interest by Kind.
type Kind uint8

const (
	KindActivityEnded Kind = iota + 1
	KindDeparture
	KindLinkEntered
	KindLinkLeft
	KindArrival
	KindActivityStarted
	// KindStuck is emitted at the horizon for vehicles that never reached
	// their last activity.
	KindStuck
)

var kindNames = map[Kind]string{
	KindActivityEnded:   "activity-ended",
	KindDeparture:       "departure",
	KindLinkEntered:     "link-entered",
	KindLinkLeft:        "link-left",
	KindArrival:         "arrival",
	KindActivityStarted: "activity-started",
	KindStuck:           "stuck",
}

// AllKinds returns every known kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindActivityEnded,
		KindDeparture,
		KindLinkEntered,
		KindLinkLeft,
		KindArrival,
		KindActivityStarted,
		KindStuck,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps the wire name of a kind (e.g. "link-entered") back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Attribute is one free-form key/value pair carried by an Event.
type Attribute struct {
	Key   string
	Value string
}

// Event is an immutable timestamped record of one occurrence in the simulation.
// The zero value is not meaningful; build events with New.
type Event struct {
	time    float64
	kind    Kind
	person  string
	vehicle string
	link    string
	attrs   []Attribute
}

// Field sets an optional part of an Event during construction.
type Field func(*Event)

// Person sets the person identifier.
func Person(id string) Field { return func(e *Event) { e.person = id } }

// Vehicle sets the vehicle identifier.
func Vehicle(id string) Field { return func(e *Event) { e.vehicle = id } }

// Link sets the link identifier.
func Link(id string) Field { return func(e *Event) { e.link = id } }

// Attr appends a free-form attribute. Attributes keep insertion order.
func Attr(key, value string) Field {
	return func(e *Event) { e.attrs = append(e.attrs, Attribute{Key: key, Value: value}) }
}

// New builds an Event at simulation time t (seconds).
func New(t float64, kind Kind, fields ...Field) Event {
	e := Event{time: t, kind: kind}
	for _, f := range fields {
		f(&e)
	}
	return e
}

func (e Event) Time() float64     { return e.time }
func (e Event) Kind() Kind        { return e.kind }
func (e Event) PersonID() string  { return e.person }
func (e Event) VehicleID() string { return e.vehicle }
func (e Event) LinkID() string    { return e.link }

// Attributes returns a copy of the event's attributes in insertion order.
func (e Event) Attributes() []Attribute {
	out := make([]Attribute, len(e.attrs))
	copy(out, e.attrs)
	return out
}

// Attr looks up the first attribute with the given key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// String renders the canonical encoding of the event:
//
//	<time> <kind> [person=..] [vehicle=..] [link=..] [key=value ...]
//
// Two events are considered identical iff their encodings are equal; the
// fingerprint and the determinism tests rely on this.
func (e Event) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(e.time, 'f', -1, 64))
	sb.WriteByte(' ')
	sb.WriteString(e.kind.String())
	if e.person != "" {
		sb.WriteString(" person=")
		sb.WriteString(e.person)
	}
	if e.vehicle != "" {
		sb.WriteString(" vehicle=")
		sb.WriteString(e.vehicle)
	}
	if e.link != "" {
		sb.WriteString(" link=")
		sb.WriteString(e.link)
	}
	for _, a := range e.attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(a.Value)
	}
	return sb.String()
}
