package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/trafficsim/qsim/sim/events"
)

// Vehicle is a simulated agent walking its plan.
type Vehicle struct {
	ID       string
	PersonID string

	plan *Plan
	// leg indexes the current leg while driving, or the current activity
	// while parked.
	leg int
	// route indexes the occupied link within the current leg's route;
	// -1 before entering the first link.
	route int

	link         *linkQueue // occupied link, not owned
	enteredAt    float64
	earliestExit float64

	waitingFor   *linkQueue
	retryPending bool
}

func newVehicle(p *Plan) *Vehicle {
	return &Vehicle{ID: p.vehicleID(), PersonID: p.PersonID, plan: p, route: -1}
}

// currentRoute is the route of the leg being driven.
func (v *Vehicle) currentRoute() []string {
	return v.plan.Legs[v.leg].Route
}

// nextLinkID returns the link after the occupied one, or "" at the end of
// the route.
func (v *Vehicle) nextLinkID() string {
	route := v.currentRoute()
	if v.route+1 < len(route) {
		return route[v.route+1]
	}
	return ""
}

// activityEnd fires when a vehicle's current activity is over.
type activityEnd struct{ v *Vehicle }

func (p activityEnd) Execute(e *Engine) error { return e.endActivity(p.v) }

// exitCheck asks a link to release its head vehicle.
type exitCheck struct{ q *linkQueue }

func (p exitCheck) Execute(e *Engine) error { return e.processExit(p.q) }

// entryRetry wakes a vehicle blocked at its activity location.
type entryRetry struct{ v *Vehicle }

func (p entryRetry) Execute(e *Engine) error {
	p.v.retryPending = false
	return e.tryFirstEntry(p.v)
}

// endActivity starts the next leg of v.
func (e *Engine) endActivity(v *Vehicle) error {
	act := v.plan.Activities[v.leg]
	if err := e.emit(events.New(e.now, events.KindActivityEnded,
		events.Person(v.PersonID), events.Link(act.LinkID), events.Attr("actType", act.Type))); err != nil {
		return err
	}
	if err := e.emit(events.New(e.now, events.KindDeparture,
		events.Person(v.PersonID), events.Vehicle(v.ID), events.Link(act.LinkID), events.Attr("legMode", "car"))); err != nil {
		return err
	}
	v.route = -1
	if len(v.currentRoute()) == 0 {
		return e.arrive(v)
	}
	return e.tryFirstEntry(v)
}

// tryFirstEntry puts a departing vehicle onto the first link of its route,
// or queues it there.
func (e *Engine) tryFirstEntry(v *Vehicle) error {
	q := e.links[v.currentRoute()[0]]
	if !q.canAdmit(v) {
		q.enqueueWaiting(v)
		logrus.Debugf("[t=%v] vehicle %s waits to enter %s", e.now, v.ID, q.ID)
		return nil
	}
	return e.enter(v, q)
}

// processExit releases the head of q when it is ready and its next link
// has space. A head blocked by a full next link stays put, holding its
// place on q; q is re-checked when that link notifies it.
func (e *Engine) processExit(q *linkQueue) error {
	if q.checkPending && q.checkAt == e.now {
		q.checkPending = false
	}
	v := q.head()
	if v == nil {
		return nil
	}
	if ready := q.readyTime(v); e.now < ready {
		return e.scheduleExit(q, ready)
	}

	nextID := v.nextLinkID()
	if nextID == "" {
		if err := e.leave(v, q); err != nil {
			return err
		}
		if err := e.afterExit(q); err != nil {
			return err
		}
		return e.arrive(v)
	}

	next := e.links[nextID]
	if !next.canAdmit(v) {
		next.enqueueWaiting(v)
		logrus.Debugf("[t=%v] vehicle %s blocked on %s by full %s", e.now, v.ID, q.ID, next.ID)
		return nil
	}
	if err := e.leave(v, q); err != nil {
		return err
	}
	if err := e.enter(v, next); err != nil {
		return err
	}
	return e.afterExit(q)
}

// enter admits v to q and emits link-entered.
func (e *Engine) enter(v *Vehicle, q *linkQueue) error {
	if err := q.admit(v, e.now); err != nil {
		return err
	}
	v.route++
	if err := e.emit(events.New(e.now, events.KindLinkEntered,
		events.Person(v.PersonID), events.Vehicle(v.ID), events.Link(q.ID))); err != nil {
		return err
	}
	if q.head() == v {
		if err := e.scheduleExit(q, q.readyTime(v)); err != nil {
			return err
		}
	}
	// space may remain for the next waiter
	if len(q.waiting) > 0 && q.freeSpace() > 0 {
		return e.notify(q)
	}
	return nil
}

// leave removes v from q and emits link-left.
func (e *Engine) leave(v *Vehicle, q *linkQueue) error {
	if err := q.release(v, e.now); err != nil {
		return err
	}
	return e.emit(events.New(e.now, events.KindLinkLeft,
		events.Person(v.PersonID), events.Vehicle(v.ID), events.Link(q.ID)))
}

// afterExit schedules the new head of q and wakes the first waiter.
func (e *Engine) afterExit(q *linkQueue) error {
	if h := q.head(); h != nil {
		if err := e.scheduleExit(q, q.readyTime(h)); err != nil {
			return err
		}
	}
	if len(q.waiting) > 0 {
		return e.notify(q)
	}
	return nil
}

// notify wakes the first vehicle waiting to enter q: either the upstream
// link it heads, or the vehicle itself when it waits at its activity.
func (e *Engine) notify(q *linkQueue) error {
	w := q.waiting[0]
	if w.link != nil {
		return e.scheduleExit(w.link, e.now)
	}
	if w.retryPending {
		return nil
	}
	w.retryPending = true
	return e.schedule(e.now, entryRetry{v: w})
}

// scheduleExit queues an exit check for q at t unless one is already due no
// later than t. Extra checks are harmless: processExit re-evaluates.
func (e *Engine) scheduleExit(q *linkQueue, t float64) error {
	if q.checkPending && q.checkAt <= t {
		return nil
	}
	q.checkPending = true
	q.checkAt = t
	return e.schedule(t, exitCheck{q: q})
}

// arrive ends the current leg of v at its destination activity and either
// schedules the next departure or retires v.
func (e *Engine) arrive(v *Vehicle) error {
	v.leg++
	act := v.plan.Activities[v.leg]
	if err := e.emit(events.New(e.now, events.KindArrival,
		events.Person(v.PersonID), events.Vehicle(v.ID), events.Link(act.LinkID), events.Attr("legMode", "car"))); err != nil {
		return err
	}
	if err := e.emit(events.New(e.now, events.KindActivityStarted,
		events.Person(v.PersonID), events.Link(act.LinkID), events.Attr("actType", act.Type))); err != nil {
		return err
	}
	v.route = -1
	if v.leg == len(v.plan.Activities)-1 {
		e.retire(v)
		return nil
	}
	end := act.EndTime
	if act.Duration > 0 {
		end = e.now + act.Duration
	}
	if end < e.now {
		end = e.now
	}
	return e.schedule(end, activityEnd{v: v})
}
