package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_String_CanonicalEncoding(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"bare", New(0, KindStuck), "0 stuck"},
		{"fractional time", New(12.5, KindArrival, Person("p1")), "12.5 arrival person=p1"},
		{
			"all fields in fixed order",
			New(100, KindLinkEntered, Link("l1"), Vehicle("v1"), Person("p1"), Attr("b", "2"), Attr("a", "1")),
			"100 link-entered person=p1 vehicle=v1 link=l1 b=2 a=1",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ev.String())
		})
	}
}

func TestEvent_Attributes_ReturnsCopy(t *testing.T) {
	// GIVEN an event with one attribute
	e := New(1, KindDeparture, Attr("legMode", "car"))

	// WHEN the returned slice is modified
	attrs := e.Attributes()
	attrs[0].Value = "bike"

	// THEN the event is unchanged
	v, ok := e.Attr("legMode")
	require.True(t, ok)
	assert.Equal(t, "car", v)
	_, ok = e.Attr("missing")
	assert.False(t, ok)
}

func TestParseKind_RoundTripsEveryKind(t *testing.T) {
	for _, k := range AllKinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("teleported")
	assert.Error(t, err)
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestParseStrategyAndPolicy(t *testing.T) {
	s, err := ParseStrategy("parallel")
	require.NoError(t, err)
	assert.Equal(t, StrategyParallel, s)
	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyCausal, s)
	_, err = ParseStrategy("sequential")
	assert.Error(t, err)

	p, err := ParseDispatchPolicy("remove")
	require.NoError(t, err)
	assert.Equal(t, PolicyRemove, p)
	_, err = ParseDispatchPolicy("ignore")
	assert.Error(t, err)
}
