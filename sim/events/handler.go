package events

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Handler consumes events delivered by a Manager.
type Handler interface {
	HandleEvent(e Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(e Event) error

func (f HandlerFunc) HandleEvent(e Event) error { return f(e) }

// KindFilter is implemented by handlers that only want some kinds.
// Handlers without it, or returning no kinds, accept every kind.
type KindFilter interface {
	Kinds() []Kind
}

// Resetter is implemented by handlers that keep per-run state.
// Reset is called from InitProcessing.
type Resetter interface {
	Reset()
}

// Flusher is implemented by handlers that buffer output.
// Flush is called from FinishProcessing, also after a fatal run error.
type Flusher interface {
	Flush() error
}

// Filtered restricts h to the given kinds without changing h itself.
func Filtered(h Handler, kinds ...Kind) Handler {
	return &filtered{Handler: h, kinds: kinds}
}

type filtered struct {
	Handler
	kinds []Kind
}

func (f *filtered) Kinds() []Kind { return f.kinds }

func (f *filtered) String() string { return handlerName(f.Handler) }

func (f *filtered) Reset() {
	if r, ok := f.Handler.(Resetter); ok {
		r.Reset()
	}
}

func (f *filtered) Flush() error {
	if fl, ok := f.Handler.(Flusher); ok {
		return fl.Flush()
	}
	return nil
}

// entry is one registration in the handler table.
type entry struct {
	h       Handler
	name    string
	all     bool
	kinds   map[Kind]bool
	removed atomic.Bool
}

func newEntry(h Handler) *entry {
	en := &entry{h: h, name: handlerName(h), all: true}
	if kf, ok := h.(KindFilter); ok {
		if ks := kf.Kinds(); len(ks) > 0 {
			en.all = false
			en.kinds = make(map[Kind]bool, len(ks))
			for _, k := range ks {
				en.kinds[k] = true
			}
		}
	}
	return en
}

func (en *entry) accepts(k Kind) bool {
	return en.all || en.kinds[k]
}

func handlerName(h Handler) string {
	if s, ok := h.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", h)
}

// sameHandler compares handlers without panicking on uncomparable dynamic
// types such as HandlerFunc; those never match.
func sameHandler(a, b Handler) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// table is the capability registration table: registrations in order plus
// a per-kind dispatch list built from them.
type table struct {
	entries []*entry
	byKind  map[Kind][]*entry
}

func newTable() *table {
	return &table{byKind: make(map[Kind][]*entry)}
}

func (t *table) add(h Handler) {
	t.entries = append(t.entries, newEntry(h))
	t.rebuild()
}

func (t *table) remove(h Handler) bool {
	for i, en := range t.entries {
		if sameHandler(en.h, h) {
			en.removed.Store(true)
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			t.rebuild()
			return true
		}
	}
	return false
}

// compact drops entries marked removed during dispatch.
func (t *table) compact() {
	kept := t.entries[:0:0]
	for _, en := range t.entries {
		if !en.removed.Load() {
			kept = append(kept, en)
		}
	}
	if len(kept) != len(t.entries) {
		t.entries = kept
		t.rebuild()
	}
}

func (t *table) rebuild() {
	t.byKind = make(map[Kind][]*entry)
	for _, k := range AllKinds() {
		for _, en := range t.entries {
			if en.accepts(k) {
				t.byKind[k] = append(t.byKind[k], en)
			}
		}
	}
}

// forKind returns handlers interested in k, in registration order. Kinds
// outside AllKinds only reach accepts-all handlers.
func (t *table) forKind(k Kind) []*entry {
	if list, ok := t.byKind[k]; ok {
		return list
	}
	var list []*entry
	for _, en := range t.entries {
		if en.all {
			list = append(list, en)
		}
	}
	return list
}

func (t *table) snapshot() []*entry {
	out := make([]*entry, len(t.entries))
	copy(out, t.entries)
	return out
}
