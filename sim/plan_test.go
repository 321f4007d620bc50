package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineNetwork is a -> b -> c with a return link c -> a.
func lineNetwork(t *testing.T) *Network {
	t.Helper()
	net, err := NewNetwork([]Link{
		{ID: "ab", From: "a", To: "b", Length: 100, FreeSpeed: 10, FlowCapacity: 1},
		{ID: "bc", From: "b", To: "c", Length: 100, FreeSpeed: 10, FlowCapacity: 1},
		{ID: "ca", From: "c", To: "a", Length: 100, FreeSpeed: 10, FlowCapacity: 1},
	})
	require.NoError(t, err)
	return net
}

func trip(person, from, to string, end float64, route ...string) Plan {
	return Plan{
		PersonID:   person,
		Activities: []Activity{{Type: "home", LinkID: from, EndTime: end}, {Type: "work", LinkID: to, EndTime: -1}},
		Legs:       []Leg{{Route: route}},
	}
}

func TestPlanValidate(t *testing.T) {
	net := lineNetwork(t)
	tests := []struct {
		name    string
		plan    Plan
		wantErr string
	}{
		{"valid", trip("p", "ab", "bc", 0, "ab", "bc"), ""},
		{"empty route on one link", trip("p", "ab", "ab", 0), ""},
		{"empty person", trip("", "ab", "bc", 0, "ab", "bc"), "empty person id"},
		{"single activity", Plan{PersonID: "p", Activities: []Activity{{LinkID: "ab"}}}, "at least two activities"},
		{"leg count", Plan{PersonID: "p", Activities: make([]Activity, 3), Legs: make([]Leg, 1)}, "3 activities but 1 legs"},
		{"negative first end", trip("p", "ab", "bc", -1, "ab", "bc"), "non-negative"},
		{"unknown activity link", trip("p", "ab", "zz", 0, "ab", "zz"), "unknown link"},
		{"route starts elsewhere", trip("p", "ab", "bc", 0, "bc"), "starts on"},
		{"route ends elsewhere", trip("p", "ab", "bc", 0, "ab"), "ends on"},
		{"disconnected turn", trip("p", "ab", "ab", 0, "ab", "ca", "ab"), "not connected"},
		{"empty route between links", trip("p", "ab", "bc", 0), "empty route"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.validate(net)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Contains(t, ce.Reason, tc.wantErr)
		})
	}
}

func TestPlanValidate_DecreasingEndTimes(t *testing.T) {
	net := lineNetwork(t)
	p := Plan{
		PersonID: "p",
		Activities: []Activity{
			{Type: "home", LinkID: "ab", EndTime: 100},
			{Type: "work", LinkID: "bc", EndTime: 50},
			{Type: "home", LinkID: "ab"},
		},
		Legs: []Leg{{Route: []string{"ab", "bc"}}, {Route: []string{"bc", "ca", "ab"}}},
	}
	assert.ErrorContains(t, p.validate(net), "before the previous end")

	// a duration or a negative end opts out of the ordering check
	p.Activities[1].Duration = 30
	assert.NoError(t, p.validate(net))
	p.Activities[1].Duration = 0
	p.Activities[1].EndTime = -1
	assert.NoError(t, p.validate(net))
}

func TestPlan_VehicleIDDefaultsToPerson(t *testing.T) {
	p := trip("p1", "ab", "ab", 0)
	assert.Equal(t, "p1", p.vehicleID())
	p.VehicleID = "car"
	assert.Equal(t, "car", p.vehicleID())
}
