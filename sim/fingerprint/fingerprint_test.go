package fingerprint

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsim/qsim/sim/events"
)

func stream() []events.Event {
	return []events.Event{
		events.New(0, events.KindActivityEnded, events.Person("p1"), events.Link("l1"), events.Attr("actType", "home")),
		events.New(0, events.KindDeparture, events.Person("p1"), events.Vehicle("p1"), events.Link("l1")),
		events.New(0, events.KindLinkEntered, events.Person("p1"), events.Vehicle("p1"), events.Link("l1")),
		events.New(100, events.KindLinkLeft, events.Person("p1"), events.Vehicle("p1"), events.Link("l1")),
		events.New(1000, events.KindArrival, events.Person("p1"), events.Vehicle("p1"), events.Link("l2")),
	}
}

func fingerprintOf(evs []events.Event) *Fingerprint {
	h := NewHandler(DefaultBinSize)
	for _, e := range evs {
		_ = h.HandleEvent(e)
	}
	return h.Fingerprint()
}

func TestHandler_CountsBinsAndKinds(t *testing.T) {
	// GIVEN five events, four in the first 900 s bin and one in the second
	fp := fingerprintOf(stream())

	// THEN bins and kind counts reflect the stream
	assert.Equal(t, []uint64{4, 1}, fp.TimeBins)
	assert.Equal(t, uint64(5), fp.Total())
	assert.Equal(t, uint64(1), fp.Kinds["link-left"])
	assert.Equal(t, uint64(1), fp.Kinds["activity-ended"])
	assert.NotZero(t, fp.Hash)
}

func TestHandler_Reset_StartsOver(t *testing.T) {
	// GIVEN a handler that already saw events
	h := NewHandler(0)
	for _, e := range stream() {
		require.NoError(t, h.HandleEvent(e))
	}
	empty := NewHandler(0).Fingerprint()

	// WHEN reset
	h.Reset()

	// THEN it is indistinguishable from a fresh handler
	assert.Equal(t, Equal, Compare(empty, h.Fingerprint()))
}

func TestCompare_ReportsCoarsestDifference(t *testing.T) {
	base := stream()
	later := stream()
	later[4] = events.New(2000, events.KindArrival, events.Person("p1"), events.Vehicle("p1"), events.Link("l2"))
	moved := stream()
	moved[3] = events.New(950, events.KindLinkLeft, events.Person("p1"), events.Vehicle("p1"), events.Link("l1"))
	rekinded := stream()
	rekinded[3] = events.New(100, events.KindStuck, events.Person("p1"), events.Vehicle("p1"), events.Link("l1"))
	renamed := stream()
	renamed[3] = events.New(100, events.KindLinkLeft, events.Person("p2"), events.Vehicle("p1"), events.Link("l1"))
	swapped := stream()
	swapped[0], swapped[1] = swapped[1], swapped[0]

	tests := []struct {
		name  string
		other []events.Event
		want  Result
	}{
		{"identical", stream(), Equal},
		{"extra bin", later, DifferentNumberOfTimeBins},
		{"event moved between bins", moved, DifferentTimeBins},
		{"kind changed", rekinded, DifferentEventCounts},
		{"attribute changed", renamed, DifferentEventAttributes},
		{"order changed", swapped, DifferentEventAttributes},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(fingerprintOf(base), fingerprintOf(tc.other)))
		})
	}
}

func TestWriteRead_PreservesFingerprint(t *testing.T) {
	// GIVEN a fingerprint
	fp := fingerprintOf(stream())

	// WHEN written and read back
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fp))
	assert.Equal(t, headerByte, buf.Bytes()[0])
	assert.Equal(t, formatVersion, buf.Bytes()[1])
	got, err := Read(&buf)
	require.NoError(t, err)

	// THEN it compares equal and keeps every field
	assert.Equal(t, Equal, Compare(fp, got))
	assert.Equal(t, fp, got)
}

func TestReadFile_RoundTripsThroughDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run"+FileExtension)
	fp := fingerprintOf(stream())
	require.NoError(t, WriteFile(path, fp))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Equal, Compare(fp, got))
}

func TestRead_BadHeader_Rejected(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{'x', formatVersion, 0}))
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = Read(bytes.NewReader([]byte{headerByte, 99}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported fingerprint version")
}
