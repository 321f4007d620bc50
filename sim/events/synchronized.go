package events

import "sync"

// Synchronized serializes every call to an inner Manager behind a mutex so
// that several producers can feed it concurrently. The mutex is the single
// merge point: events reach the inner manager in the order the producers
// acquired the lock, and the inner manager still rejects time regressions.
type Synchronized struct {
	mu    sync.Mutex
	inner Manager
}

// Synchronize wraps m. Wrapping a Synchronized returns it unchanged.
func Synchronize(m Manager) *Synchronized {
	if s, ok := m.(*Synchronized); ok {
		return s
	}
	return &Synchronized{inner: m}
}

// ParallelFeedable returns a manager that accepts concurrent producers:
// m itself when it already does, a Synchronized wrapper otherwise.
func ParallelFeedable(m Manager) Manager {
	return Synchronize(m)
}

// Inner returns the wrapped manager.
func (s *Synchronized) Inner() Manager { return s.inner }

func (s *Synchronized) AddHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.AddHandler(h)
}

func (s *Synchronized) RemoveHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.RemoveHandler(h)
}

func (s *Synchronized) InitProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.InitProcessing()
}

func (s *Synchronized) ProcessEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ProcessEvent(e)
}

func (s *Synchronized) FinishProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.FinishProcessing()
}

func (s *Synchronized) State() State {
	return s.inner.State()
}

// Drain forwards to the inner manager when it delivers asynchronously.
func (s *Synchronized) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.inner.(Drainer); ok {
		return d.Drain()
	}
	return nil
}
