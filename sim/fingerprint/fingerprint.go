// Package fingerprint condenses an event stream into a small, comparable
// summary: event counts per time bin, counts per kind and one hash over the
// canonical encoding of every event. Two runs producing the same fingerprint
// produced the same events in the same order.
package fingerprint

import (
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/trafficsim/qsim/sim/events"
)

// DefaultBinSize is the width of a time bin in simulated seconds.
const DefaultBinSize = 900.0

// Fingerprint is the summary of one event stream.
type Fingerprint struct {
	Version  uint8
	BinSize  float64
	TimeBins []uint64          // event count per bin; bin i covers [i*BinSize, (i+1)*BinSize)
	Kinds    map[string]uint64 // event count per kind name
	Hash     uint64            // xxhash64 over the canonical encodings
}

// Total returns the number of events summarized.
func (fp *Fingerprint) Total() uint64 {
	var n uint64
	for _, c := range fp.TimeBins {
		n += c
	}
	return n
}

// Handler builds a Fingerprint from the events it receives. It accepts
// every kind.
type Handler struct {
	mu      sync.Mutex
	binSize float64
	bins    []uint64
	kinds   map[string]uint64
	digest  *xxhash.Digest
	buf     []byte
}

// NewHandler creates a Handler with the given bin size; non-positive sizes
// fall back to DefaultBinSize.
func NewHandler(binSize float64) *Handler {
	if !(binSize > 0) || math.IsInf(binSize, 0) {
		binSize = DefaultBinSize
	}
	h := &Handler{binSize: binSize}
	h.Reset()
	return h
}

func (h *Handler) String() string { return "fingerprint" }

// HandleEvent folds e into the fingerprint.
func (h *Handler) HandleEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bin := max(0, int(math.Floor(e.Time()/h.binSize)))
	for len(h.bins) <= bin {
		h.bins = append(h.bins, 0)
	}
	h.bins[bin]++
	h.kinds[e.Kind().String()]++

	h.buf = append(h.buf[:0], e.String()...)
	h.buf = append(h.buf, '\n')
	_, _ = h.digest.Write(h.buf)
	return nil
}

// Reset clears all counts. Called by the manager on InitProcessing.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bins = nil
	h.kinds = make(map[string]uint64)
	h.digest = xxhash.New()
}

// Fingerprint returns a snapshot of the current state.
func (h *Handler) Fingerprint() *Fingerprint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &Fingerprint{
		Version:  formatVersion,
		BinSize:  h.binSize,
		TimeBins: slices.Clone(h.bins),
		Kinds:    maps.Clone(h.kinds),
		Hash:     h.digest.Sum64(),
	}
}

// Result is the outcome of Compare, from most to least coarse difference.
type Result int

const (
	Equal Result = iota
	DifferentNumberOfTimeBins
	DifferentTimeBins
	DifferentEventCounts
	DifferentEventAttributes
)

func (r Result) String() string {
	switch r {
	case Equal:
		return "equal"
	case DifferentNumberOfTimeBins:
		return "different number of time bins"
	case DifferentTimeBins:
		return "different time bins"
	case DifferentEventCounts:
		return "different event counts"
	case DifferentEventAttributes:
		return "different event attributes"
	}
	return "unknown"
}

// Compare reports the first difference between a and b. Fingerprints with
// different bin sizes never compare equal on their bins.
func Compare(a, b *Fingerprint) Result {
	if len(a.TimeBins) != len(b.TimeBins) {
		return DifferentNumberOfTimeBins
	}
	if a.BinSize != b.BinSize || !slices.Equal(a.TimeBins, b.TimeBins) {
		return DifferentTimeBins
	}
	if !maps.Equal(a.Kinds, b.Kinds) {
		return DifferentEventCounts
	}
	if a.Hash != b.Hash {
		return DifferentEventAttributes
	}
	return Equal
}
