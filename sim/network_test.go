package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNetwork_DerivesStorageAndTurns(t *testing.T) {
	// GIVEN a small network without explicit storage
	net, err := NewNetwork([]Link{
		{ID: "ab", From: "a", To: "b", Length: 75, FreeSpeed: 10, FlowCapacity: 1},
		{ID: "bc", From: "b", To: "c", Length: 75, FreeSpeed: 10, FlowCapacity: 1, Lanes: 2},
		{ID: "bd", From: "b", To: "d", Length: 3, FreeSpeed: 10, FlowCapacity: 1},
		{ID: "ba", From: "b", To: "a", Length: 75, FreeSpeed: 10, FlowCapacity: 1, StorageCapacity: 3},
	})
	require.NoError(t, err)

	// THEN storage is floor(length*lanes/7.5), at least one, unless given
	storage := map[string]int{"ab": 10, "bc": 20, "bd": 1, "ba": 3}
	for id, want := range storage {
		l, ok := net.Link(id)
		require.True(t, ok)
		assert.Equal(t, want, l.StorageCapacity, id)
	}

	// THEN turns follow shared nodes
	assert.Equal(t, []string{"ba", "bc", "bd"}, net.Downstream("ab"))
	assert.True(t, net.Connected("ab", "bc"))
	assert.True(t, net.Connected("ba", "ab"))
	assert.False(t, net.Connected("bc", "ab"))
	assert.False(t, net.Connected("ab", "zz"))
	assert.Equal(t, 4, net.Len())
	assert.Len(t, net.Links(), 4)
}

func TestNewNetwork_InvalidLinks_ConfigurationError(t *testing.T) {
	valid := Link{ID: "l", From: "a", To: "b", Length: 100, FreeSpeed: 10, FlowCapacity: 1}
	tests := []struct {
		name   string
		mutate func(*Link)
	}{
		{"zero flow capacity", func(l *Link) { l.FlowCapacity = 0 }},
		{"negative flow capacity", func(l *Link) { l.FlowCapacity = -1 }},
		{"NaN flow capacity", func(l *Link) { l.FlowCapacity = math.NaN() }},
		{"zero length", func(l *Link) { l.Length = 0 }},
		{"infinite speed", func(l *Link) { l.FreeSpeed = math.Inf(1) }},
		{"negative storage", func(l *Link) { l.StorageCapacity = -2 }},
		{"negative lanes", func(l *Link) { l.Lanes = -1 }},
		{"missing node", func(l *Link) { l.To = "" }},
		{"missing id", func(l *Link) { l.ID = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := valid
			tc.mutate(&l)
			_, err := NewNetwork([]Link{l})
			var ce *ConfigurationError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}

	_, err := NewNetwork([]Link{valid, valid})
	assert.ErrorContains(t, err, "duplicate id")
}

func TestNewNetwork_SelfLoopLink(t *testing.T) {
	net, err := NewNetwork([]Link{{ID: "loop", From: "a", To: "a", Length: 10, FreeSpeed: 1, FlowCapacity: 1}})
	require.NoError(t, err)
	assert.Empty(t, net.Downstream("loop"))
}

func TestLink_TimesFromAttributes(t *testing.T) {
	l := Link{Length: 1000, FreeSpeed: 10, FlowCapacity: 0.1}
	assert.Equal(t, 100.0, l.FreeFlowTime())
	assert.Equal(t, 10.0, l.Headway())
}
