package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/trafficsim/qsim/sim/events"
)

// EngineState is the lifecycle state of an Engine.
type EngineState int32

const (
	EngineNotStarted EngineState = iota
	EngineRunning
	EngineFinished
)

func (s EngineState) String() string {
	switch s {
	case EngineNotStarted:
		return "not-started"
	case EngineRunning:
		return "running"
	case EngineFinished:
		return "finished"
	}
	return fmt.Sprintf("engine-state(%d)", int32(s))
}

// Snapshot is the engine state handed to observers after every record.
type Snapshot struct {
	Time      float64
	Active    int
	Occupancy map[string]int // vehicles on each link
	Waiting   map[string]int // vehicles queued to enter each link
}

// Option configures an Engine.
type Option func(*Engine)

// WithHorizon stops processing records due after t. Vehicles still active
// then receive a stuck event at t.
func WithHorizon(t float64) Option {
	return func(e *Engine) { e.horizon = t }
}

// WithObserver registers fn to be called after each processed record.
// fn runs on the engine's goroutine and must not retain the maps.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// Engine is the queue-based mobility simulation. It owns the event queue,
// the link queues and the active vehicles, and runs single-threaded: one
// record is processed to completion before the next is popped.
type Engine struct {
	net *Network
	mgr events.Manager

	queue     *EventQueue
	links     map[string]*linkQueue
	linkOrder []*linkQueue
	vehicles  []*Vehicle
	active    map[string]*Vehicle

	now       float64
	horizon   float64
	observers []func(Snapshot)

	state atomic.Int32
	stop  atomic.Bool
}

// NewEngine validates plans against net and prepares a run that reports to
// mgr. Validation failures are ConfigurationErrors.
func NewEngine(net *Network, plans []Plan, mgr events.Manager, opts ...Option) (*Engine, error) {
	if net == nil {
		return nil, configErrorf("network", "missing")
	}
	if mgr == nil {
		return nil, configErrorf("events manager", "missing")
	}
	e := &Engine{
		net:     net,
		mgr:     mgr,
		queue:   NewEventQueue(),
		links:   make(map[string]*linkQueue, net.Len()),
		active:  make(map[string]*Vehicle, len(plans)),
		horizon: math.Inf(1),
	}
	for _, o := range opts {
		o(e)
	}
	if math.IsNaN(e.horizon) || e.horizon < 0 {
		return nil, configErrorf("horizon", "must be non-negative, got %v", e.horizon)
	}
	for _, l := range net.links {
		q := newLinkQueue(l)
		e.links[l.ID] = q
		e.linkOrder = append(e.linkOrder, q)
	}
	seen := make(map[string]bool, len(plans))
	for i := range plans {
		p := plans[i]
		if err := p.validate(net); err != nil {
			return nil, err
		}
		vid := p.vehicleID()
		if seen[vid] {
			return nil, configErrorf(fmt.Sprintf("plan %q", p.PersonID), "duplicate vehicle id %q", vid)
		}
		seen[vid] = true
		e.vehicles = append(e.vehicles, newVehicle(&p))
	}
	return e, nil
}

// State reports the engine lifecycle state.
func (e *Engine) State() EngineState { return EngineState(e.state.Load()) }

// Now returns the current simulation time.
func (e *Engine) Now() float64 { return e.now }

// Stop asks a running engine to return before popping the next record.
// Safe to call from any goroutine.
func (e *Engine) Stop() { e.stop.Store(true) }

// ActiveVehicles returns the ids of vehicles that have not reached their
// last activity, sorted.
func (e *Engine) ActiveVehicles() []string {
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Occupancy returns the number of vehicles on a link.
func (e *Engine) Occupancy(linkID string) int {
	if q, ok := e.links[linkID]; ok {
		return len(q.occupants)
	}
	return 0
}

// Waiting returns the number of vehicles queued to enter a link.
func (e *Engine) Waiting(linkID string) int {
	if q, ok := e.links[linkID]; ok {
		return len(q.waiting)
	}
	return 0
}

// Run simulates until no records remain, the horizon is passed, Stop is
// called or ctx is done. The manager must already be processing. Normal
// completion leaves it processing so the caller can finish it; every error
// path finishes it so handlers can flush partial results.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(EngineNotStarted), int32(EngineRunning)) {
		return ErrAlreadyRun
	}
	defer e.state.Store(int32(EngineFinished))

	if st := e.mgr.State(); st != events.StateProcessing {
		return e.abort(fmt.Errorf("starting run: %w (state %s)", events.ErrNotProcessing, st))
	}

	for _, v := range e.vehicles {
		e.active[v.ID] = v
		if err := e.schedule(v.plan.Activities[0].EndTime, activityEnd{v: v}); err != nil {
			return e.abort(err)
		}
	}
	logrus.Infof("Starting simulation with %d links and %d vehicles", len(e.linkOrder), len(e.vehicles))

	for {
		if e.stop.Load() {
			return e.abort(ErrStopped)
		}
		if err := ctx.Err(); err != nil {
			return e.abort(err)
		}
		next, ok := e.queue.Peek()
		if !ok || next.Due > e.horizon {
			break
		}
		rec, _ := e.queue.PopNext()
		e.now = rec.Due
		logrus.Tracef("[t=%v] executing %T", e.now, rec.Payload)
		if err := rec.Payload.Execute(e); err != nil {
			return e.abort(err)
		}
		e.observe()
	}

	if len(e.active) > 0 {
		if e.queue.Len() == 0 {
			return e.abort(e.stalled())
		}
		if err := e.abortStuck(); err != nil {
			return e.abort(err)
		}
	}
	// an asynchronous manager may still hold a handler failure
	if d, ok := e.mgr.(events.Drainer); ok {
		if err := d.Drain(); err != nil {
			return e.abort(err)
		}
	}
	logrus.Infof("[t=%v] Simulation ended", e.now)
	return nil
}

// abort finishes the manager after a fatal error.
func (e *Engine) abort(err error) error {
	logrus.Errorf("[t=%v] Simulation aborted: %v", e.now, err)
	// a parallel manager reports the same handler failure again
	if ferr := e.mgr.FinishProcessing(); ferr != nil && !errors.Is(ferr, err) {
		return errors.Join(err, ferr)
	}
	return err
}

// abortStuck emits a stuck event at the horizon for every vehicle still
// active, in vehicle id order.
func (e *Engine) abortStuck() error {
	e.now = e.horizon
	for _, id := range e.ActiveVehicles() {
		v := e.active[id]
		linkID := v.plan.Activities[v.leg].LinkID
		if v.link != nil {
			linkID = v.link.ID
		}
		if err := e.emit(events.New(e.now, events.KindStuck,
			events.Person(v.PersonID), events.Vehicle(v.ID), events.Link(linkID), events.Attr("legMode", "car"))); err != nil {
			return err
		}
	}
	logrus.Warnf("[t=%v] horizon reached with %d vehicles still active", e.now, len(e.active))
	return nil
}

// stalled builds the diagnosis for a drained queue with active vehicles.
func (e *Engine) stalled() *StalledError {
	err := &StalledError{Time: e.now}
	full := make(map[string]bool)
	for _, id := range e.ActiveVehicles() {
		v := e.active[id]
		if v.waitingFor != nil {
			err.Vehicles = append(err.Vehicles, v.ID)
			full[v.waitingFor.ID] = true
		}
	}
	for id := range full {
		err.Links = append(err.Links, id)
	}
	sort.Strings(err.Links)
	return err
}

func (e *Engine) schedule(t float64, p Payload) error {
	return e.queue.Schedule(t, p)
}

func (e *Engine) emit(ev events.Event) error {
	return e.mgr.ProcessEvent(ev)
}

func (e *Engine) retire(v *Vehicle) {
	delete(e.active, v.ID)
	logrus.Debugf("[t=%v] vehicle %s finished its plan", e.now, v.ID)
}

func (e *Engine) observe() {
	if len(e.observers) == 0 {
		return
	}
	s := Snapshot{
		Time:      e.now,
		Active:    len(e.active),
		Occupancy: make(map[string]int, len(e.linkOrder)),
		Waiting:   make(map[string]int, len(e.linkOrder)),
	}
	for _, q := range e.linkOrder {
		s.Occupancy[q.ID] = len(q.occupants)
		s.Waiting[q.ID] = len(q.waiting)
	}
	for _, fn := range e.observers {
		fn(s)
	}
}
