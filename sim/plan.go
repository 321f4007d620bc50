package sim

import (
	"fmt"
	"math"
)

// Activity is a stay at a link between two trips.
type Activity struct {
	Type   string
	LinkID string
	// EndTime is the absolute time the activity ends. For every activity but
	// the first, the end is clamped to the arrival time, and a negative value
	// means "leave on arrival".
	EndTime float64
	// Duration, when positive, replaces EndTime for activities after the
	// first: the activity ends Duration seconds after arrival.
	Duration float64
}

// Leg is the trip between two consecutive activities. Route lists every link
// traversed, from the origin activity's link to the destination's. An empty
// route is allowed when both activities share a link.
type Leg struct {
	Route []string
}

// Plan is the daily schedule of one person driving one vehicle.
// len(Legs) must equal len(Activities)-1.
type Plan struct {
	PersonID   string
	VehicleID  string // defaults to PersonID
	Activities []Activity
	Legs       []Leg
}

func (p Plan) vehicleID() string {
	if p.VehicleID != "" {
		return p.VehicleID
	}
	return p.PersonID
}

// validate checks p against net.
func (p Plan) validate(net *Network) error {
	entity := fmt.Sprintf("plan %q", p.PersonID)
	if p.PersonID == "" {
		return configErrorf("plan", "empty person id")
	}
	if len(p.Activities) < 2 {
		return configErrorf(entity, "needs at least two activities, got %d", len(p.Activities))
	}
	if len(p.Legs) != len(p.Activities)-1 {
		return configErrorf(entity, "has %d activities but %d legs", len(p.Activities), len(p.Legs))
	}
	if p.Activities[0].EndTime < 0 {
		return configErrorf(entity, "first activity must end at a non-negative time, got %v", p.Activities[0].EndTime)
	}
	lastEnd := p.Activities[0].EndTime
	for i, act := range p.Activities {
		if _, ok := net.Link(act.LinkID); !ok {
			return configErrorf(entity, "activity %d references unknown link %q", i, act.LinkID)
		}
		if math.IsNaN(act.EndTime) || math.IsInf(act.EndTime, 0) || math.IsNaN(act.Duration) || math.IsInf(act.Duration, 0) || act.Duration < 0 {
			return configErrorf(entity, "activity %d has invalid timing (end %v, duration %v)", i, act.EndTime, act.Duration)
		}
		if i == 0 || i == len(p.Activities)-1 || act.Duration > 0 || act.EndTime < 0 {
			continue
		}
		if act.EndTime < lastEnd {
			return configErrorf(entity, "activity %d ends at %v, before the previous end %v", i, act.EndTime, lastEnd)
		}
		lastEnd = act.EndTime
	}
	for i, leg := range p.Legs {
		origin, dest := p.Activities[i].LinkID, p.Activities[i+1].LinkID
		if len(leg.Route) == 0 {
			if origin != dest {
				return configErrorf(entity, "leg %d has an empty route between different links %q and %q", i, origin, dest)
			}
			continue
		}
		if leg.Route[0] != origin {
			return configErrorf(entity, "leg %d starts on %q, activity is on %q", i, leg.Route[0], origin)
		}
		if last := leg.Route[len(leg.Route)-1]; last != dest {
			return configErrorf(entity, "leg %d ends on %q, activity is on %q", i, last, dest)
		}
		for j, id := range leg.Route {
			if _, ok := net.Link(id); !ok {
				return configErrorf(entity, "leg %d references unknown link %q", i, id)
			}
			if j > 0 && !net.Connected(leg.Route[j-1], id) {
				return configErrorf(entity, "leg %d turns from %q into %q, which are not connected", i, leg.Route[j-1], id)
			}
		}
	}
	return nil
}
