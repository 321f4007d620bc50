// Package events holds the event model of the simulation and the managers
// that distribute events to handlers.
//
// Every manager satisfies the same Manager contract. They differ only in how
// handlers are invoked:
//   - causal: one handler after the other, in production order. All handlers
//     observe the same global order. Use it whenever a handler depends on what
//     another handler has already seen.
//   - parallel: handlers are split into groups served by their own goroutine.
//     Each handler still observes events in production order, but the
//     interleaving between handlers is unspecified.
//
// Neither accepts concurrent producers; wrap them with Synchronize for that.
package events

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateProcessing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProcessing:
		return "processing"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Manager receives events from the producer and redistributes them to the
// registered handlers.
type Manager interface {
	AddHandler(h Handler)
	RemoveHandler(h Handler)
	InitProcessing() error
	ProcessEvent(e Event) error
	FinishProcessing() error
	State() State
}

// Drainer is implemented by managers that deliver events asynchronously.
// Producers call Drain to learn about handler failures before they finish.
type Drainer interface {
	Drain() error
}

// DispatchPolicy decides what happens when a handler fails.
type DispatchPolicy int

const (
	// PolicyAbort returns the HandlerDispatchError from ProcessEvent after the
	// event reached the remaining handlers. The caller is expected to abort.
	PolicyAbort DispatchPolicy = iota
	// PolicyRemove logs the failure, unregisters the failing handler and
	// keeps going.
	PolicyRemove
)

// ParseDispatchPolicy maps "abort" and "remove" to a DispatchPolicy.
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "remove":
		return PolicyRemove, nil
	}
	return 0, fmt.Errorf("unknown dispatch policy %q", s)
}

// Strategy selects how a Hub invokes its handlers.
type Strategy int

const (
	StrategyCausal Strategy = iota
	StrategyParallel
)

// ParseStrategy maps "causal" and "parallel" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "causal":
		return StrategyCausal, nil
	case "parallel":
		return StrategyParallel, nil
	}
	return 0, fmt.Errorf("unknown events manager %q", s)
}

type config struct {
	strategy Strategy
	policy   DispatchPolicy
	workers  int
	buffer   int
}

// Option configures a Hub.
type Option func(*config)

// WithDispatchPolicy sets the handler failure policy. Default PolicyAbort.
func WithDispatchPolicy(p DispatchPolicy) Option { return func(c *config) { c.policy = p } }

// WithWorkers sets the number of handler groups of the parallel strategy.
// Default GOMAXPROCS.
func WithWorkers(n int) Option { return func(c *config) { c.workers = n } }

// WithBuffer sets the per-group channel capacity of the parallel strategy.
func WithBuffer(n int) Option { return func(c *config) { c.buffer = n } }

// dispatcher is the pluggable part of a Hub.
type dispatcher interface {
	start(entries []*entry)
	dispatch(e Event) error
	// drain waits for delivered events and returns the first abort failure.
	drain() error
	finish() error
}

// Hub is the Manager implementation shared by all strategies.
type Hub struct {
	cfg   config
	state atomic.Int32

	handlers *table
	disp     dispatcher
	lastTime float64

	errMu      sync.Mutex
	dispatched []error
}

// newHub creates a Hub. Without options it is a causal manager that aborts
// on handler failure.
func newHub(opts ...Option) *Hub {
	cfg := config{workers: runtime.GOMAXPROCS(0), buffer: 1024}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	if cfg.buffer < 1 {
		cfg.buffer = 1
	}
	m := &Hub{cfg: cfg, handlers: newTable()}
	switch cfg.strategy {
	case StrategyParallel:
		m.disp = &parallelDispatch{hub: m}
	default:
		m.disp = &causalDispatch{hub: m}
	}
	return m
}

// NewCausal creates a manager giving every handler the same global event order.
func NewCausal(opts ...Option) *Hub {
	return newHub(append([]Option{func(c *config) { c.strategy = StrategyCausal }}, opts...)...)
}

// NewParallel creates a manager invoking handler groups concurrently.
func NewParallel(opts ...Option) *Hub {
	return newHub(append([]Option{func(c *config) { c.strategy = StrategyParallel }}, opts...)...)
}

// Strategy reports the dispatch strategy of the hub.
func (m *Hub) Strategy() Strategy { return m.cfg.strategy }

// AddHandler registers h. With the parallel strategy the handler set is
// fixed by InitProcessing; later registrations apply from the next run.
func (m *Hub) AddHandler(h Handler) {
	if m.State() == StateProcessing && m.cfg.strategy == StrategyParallel {
		logrus.Warnf("events: handler %s added while processing; active from next InitProcessing", handlerName(h))
	}
	m.handlers.add(h)
}

// RemoveHandler unregisters h. Unknown handlers are ignored.
func (m *Hub) RemoveHandler(h Handler) {
	m.handlers.remove(h)
}

func (m *Hub) State() State { return State(m.state.Load()) }

// InitProcessing resets the handlers and opens the manager for events.
func (m *Hub) InitProcessing() error {
	if m.State() == StateProcessing {
		return ErrAlreadyProcessing
	}
	for _, en := range m.handlers.entries {
		if r, ok := en.h.(Resetter); ok {
			r.Reset()
		}
	}
	m.lastTime = 0
	m.errMu.Lock()
	m.dispatched = nil
	m.errMu.Unlock()
	m.disp.start(m.handlers.snapshot())
	m.state.Store(int32(StateProcessing))
	logrus.Debugf("events: processing started with %d handlers", len(m.handlers.entries))
	return nil
}

// ProcessEvent delivers e to every interested handler.
func (m *Hub) ProcessEvent(e Event) error {
	if m.State() != StateProcessing {
		return fmt.Errorf("%w: %s", ErrNotProcessing, e.String())
	}
	if e.Time() < m.lastTime {
		return &TimeOrderError{Event: e, Previous: m.lastTime}
	}
	m.lastTime = e.Time()
	return m.disp.dispatch(e)
}

// FinishProcessing waits for in-flight deliveries, flushes handlers and
// closes the manager. Calling it on a manager that is not processing only
// moves it to StateFinished.
func (m *Hub) FinishProcessing() error {
	if m.State() != StateProcessing {
		m.state.Store(int32(StateFinished))
		return nil
	}
	errs := []error{m.disp.finish()}
	m.handlers.compact()
	for _, en := range m.handlers.entries {
		if f, ok := en.h.(Flusher); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, fmt.Errorf("flushing handler %s: %w", en.name, err))
			}
		}
	}
	m.state.Store(int32(StateFinished))
	logrus.Debugf("events: processing finished")
	return errors.Join(errs...)
}

// Drain blocks until every event passed to ProcessEvent has reached its
// handlers and returns the first failure that must abort the run.
func (m *Hub) Drain() error {
	if m.State() != StateProcessing {
		return nil
	}
	return m.disp.drain()
}

// DispatchErrors returns the handler failures absorbed under PolicyRemove
// during the current or last run.
func (m *Hub) DispatchErrors() []error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	out := make([]error, len(m.dispatched))
	copy(out, m.dispatched)
	return out
}

// deliver invokes one handler, turning errors and panics into a
// HandlerDispatchError, and applies the dispatch policy. A non-nil return
// means the run must abort.
func (m *Hub) deliver(en *entry, e Event) error {
	err := invoke(en, e)
	if err == nil {
		return nil
	}
	if m.cfg.policy == PolicyAbort {
		return err
	}
	en.removed.Store(true)
	logrus.Warnf("events: removing handler after failure: %v", err)
	m.errMu.Lock()
	m.dispatched = append(m.dispatched, err)
	m.errMu.Unlock()
	return nil
}

func invoke(en *entry, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerDispatchError{Handler: en.name, Event: e, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := en.h.HandleEvent(e); herr != nil {
		return &HandlerDispatchError{Handler: en.name, Event: e, Err: herr}
	}
	return nil
}
