package sim

import (
	"fmt"
	"math"
)

// headwayTolerance absorbs float rounding when comparing departure spacing.
const headwayTolerance = 1e-9

// linkQueue is the physical queue of one link: the vehicles on it in entry
// order and the vehicles waiting to enter it, also in arrival order.
type linkQueue struct {
	Link

	fftt    float64
	headway float64

	occupants []*Vehicle
	waiting   []*Vehicle

	// lastExit is the time of the most recent departure, -Inf before any.
	lastExit float64
	// checkPending is set while an exit check for this link is in the queue.
	checkPending bool
	checkAt      float64
}

func newLinkQueue(l Link) *linkQueue {
	return &linkQueue{
		Link:     l,
		fftt:     l.FreeFlowTime(),
		headway:  l.Headway(),
		lastExit: math.Inf(-1),
	}
}

func (q *linkQueue) head() *Vehicle {
	if len(q.occupants) == 0 {
		return nil
	}
	return q.occupants[0]
}

// readyTime is the earliest time the head may leave: free-flow delay and
// flow capacity both satisfied.
func (q *linkQueue) readyTime(v *Vehicle) float64 {
	return math.Max(v.earliestExit, q.lastExit+q.headway)
}

// canAdmit reports whether v may enter now. Space freed while others wait
// is reserved for the first waiter.
func (q *linkQueue) canAdmit(v *Vehicle) bool {
	if len(q.occupants) >= q.StorageCapacity {
		return false
	}
	return len(q.waiting) == 0 || q.waiting[0] == v
}

// enqueueWaiting appends v to the waiting list unless it is already there.
func (q *linkQueue) enqueueWaiting(v *Vehicle) {
	if v.waitingFor == q {
		return
	}
	v.waitingFor = q
	q.waiting = append(q.waiting, v)
}

// admit puts v at the tail of the link at time now.
func (q *linkQueue) admit(v *Vehicle, now float64) error {
	if len(q.occupants) >= q.StorageCapacity {
		return &CapacityInvariantViolation{LinkID: q.ID, Time: now,
			Detail: fmt.Sprintf("vehicle %s admitted with %d/%d occupants", v.ID, len(q.occupants), q.StorageCapacity)}
	}
	if len(q.waiting) > 0 && q.waiting[0] == v {
		q.waiting[0] = nil
		q.waiting = q.waiting[1:]
	}
	v.waitingFor = nil
	q.occupants = append(q.occupants, v)
	v.link = q
	v.enteredAt = now
	v.earliestExit = now + q.fftt
	return nil
}

// release removes the head v at time now, enforcing the headway.
func (q *linkQueue) release(v *Vehicle, now float64) error {
	if q.head() != v {
		return &CapacityInvariantViolation{LinkID: q.ID, Time: now,
			Detail: fmt.Sprintf("vehicle %s is not at the head of the queue", v.ID)}
	}
	if now+headwayTolerance < q.lastExit+q.headway {
		return &CapacityInvariantViolation{LinkID: q.ID, Time: now,
			Detail: fmt.Sprintf("departure %v after previous %v violates headway %v", now, q.lastExit, q.headway)}
	}
	q.occupants[0] = nil
	q.occupants = q.occupants[1:]
	q.lastExit = now
	v.link = nil
	return nil
}

// freeSpace is the number of vehicles the link can still take.
func (q *linkQueue) freeSpace() int {
	return q.StorageCapacity - len(q.occupants)
}
