package sim

import (
	"container/heap"
	"math"
)

// Payload is the work carried by a scheduled record. Execute runs inside the
// engine's single control flow and may schedule further records.
type Payload interface {
	Execute(e *Engine) error
}

// Record is one entry of the EventQueue.
type Record struct {
	Due     float64
	Seq     uint64
	Payload Payload
}

// recordHeap is a min-heap ordered by (Due, Seq). Implements heap.Interface.
type recordHeap []Record

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].Seq < h[j].Seq
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x any) {
	*h = append(*h, x.(Record))
}

func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = Record{}
	*h = old[0 : n-1]
	return item
}

// EventQueue orders pending records by due time; records due at the same
// time pop in insertion order, which keeps runs reproducible.
// Not safe for concurrent use.
type EventQueue struct {
	records recordHeap
	seq     uint64
	now     float64
}

// NewEventQueue creates an empty queue at time 0.
func NewEventQueue() *EventQueue {
	q := &EventQueue{records: make(recordHeap, 0)}
	heap.Init(&q.records)
	return q
}

// Schedule inserts payload due at the given time. Scheduling before the
// time of the last popped record is a bug in the caller and is rejected.
func (q *EventQueue) Schedule(due float64, p Payload) error {
	if math.IsNaN(due) || due < q.now {
		return &InvalidTimeError{Due: due, Now: q.now}
	}
	q.seq++
	heap.Push(&q.records, Record{Due: due, Seq: q.seq, Payload: p})
	return nil
}

// PopNext removes and returns the earliest record. ok is false when the
// queue is empty.
func (q *EventQueue) PopNext() (r Record, ok bool) {
	if len(q.records) == 0 {
		return Record{}, false
	}
	r = heap.Pop(&q.records).(Record)
	q.now = r.Due
	return r, true
}

// Peek returns the earliest record without removing it.
func (q *EventQueue) Peek() (Record, bool) {
	if len(q.records) == 0 {
		return Record{}, false
	}
	return q.records[0], true
}

// Len returns the number of pending records.
func (q *EventQueue) Len() int { return len(q.records) }

// Now returns the due time of the last popped record.
func (q *EventQueue) Now() float64 { return q.now }
