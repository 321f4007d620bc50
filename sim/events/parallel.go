package events

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// parallelDispatch partitions handlers round-robin into groups. Each group
// owns a goroutine that reads events from its channel in production order,
// so per-handler order is preserved while groups run concurrently.
type parallelDispatch struct {
	hub *Hub

	groups []chan Event
	g      *errgroup.Group
	// inflight counts events sent to a group and not yet handled by it.
	inflight sync.WaitGroup

	mu     sync.Mutex
	err    error
	failed chan struct{} // closed on the first abort failure
}

func (d *parallelDispatch) start(entries []*entry) {
	d.err = nil
	d.failed = make(chan struct{})
	n := min(d.hub.cfg.workers, len(entries))
	members := make([][]*entry, n)
	for i, en := range entries {
		members[i%n] = append(members[i%n], en)
	}

	d.g = new(errgroup.Group)
	d.groups = make([]chan Event, n)
	for i := range members {
		ch := make(chan Event, d.hub.cfg.buffer)
		d.groups[i] = ch
		group := members[i]
		d.g.Go(func() error {
			return d.serve(group, ch)
		})
	}
}

// serve drains ch until it is closed. After an abort-worthy failure the
// group keeps draining so the producer never blocks on a full channel.
func (d *parallelDispatch) serve(group []*entry, ch <-chan Event) error {
	var first error
	for e := range ch {
		for _, en := range group {
			if en.removed.Load() || !en.accepts(e.Kind()) {
				continue
			}
			if err := d.hub.deliver(en, e); err != nil {
				if first == nil {
					first = err
				}
				d.fail(err)
			}
		}
		d.inflight.Done()
	}
	return first
}

func (d *parallelDispatch) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
		close(d.failed)
	}
}

func (d *parallelDispatch) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// dispatch hands e to every group. A failure reported by any group stops
// further dispatch, including a send blocked on a full channel.
func (d *parallelDispatch) dispatch(e Event) error {
	if err := d.failure(); err != nil {
		return err
	}
	for _, ch := range d.groups {
		d.inflight.Add(1)
		select {
		case ch <- e:
		case <-d.failed:
			d.inflight.Done()
			return d.failure()
		}
	}
	return nil
}

func (d *parallelDispatch) drain() error {
	d.inflight.Wait()
	return d.failure()
}

func (d *parallelDispatch) finish() error {
	for _, ch := range d.groups {
		close(ch)
	}
	d.groups = nil
	if d.g == nil {
		return nil
	}
	return d.g.Wait()
}
