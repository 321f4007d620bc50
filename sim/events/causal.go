package events

// causalDispatch invokes handlers synchronously on the producer's goroutine,
// in registration order.
type causalDispatch struct {
	hub *Hub
}

func (d *causalDispatch) start([]*entry) {}

func (d *causalDispatch) dispatch(e Event) error {
	var first error
	removed := false
	for _, en := range d.hub.handlers.forKind(e.Kind()) {
		if en.removed.Load() {
			continue
		}
		// A failing handler never hides the event from the ones after it.
		if err := d.hub.deliver(en, e); err != nil && first == nil {
			first = err
		}
		removed = removed || en.removed.Load()
	}
	if removed {
		d.hub.handlers.compact()
	}
	return first
}

// drain has nothing to wait for: failures are returned by dispatch.
func (d *causalDispatch) drain() error { return nil }

func (d *causalDispatch) finish() error { return nil }
