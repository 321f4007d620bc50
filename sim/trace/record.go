package trace

import (
	"sort"

	"github.com/trafficsim/qsim/sim/events"
)

// TripRecord captures one car trip, from departure to arrival.
type TripRecord struct {
	PersonID  string
	VehicleID string
	Departure float64
	Arrival   float64 // zero while Completed is false
	Links     int     // links entered
	Completed bool    // false for trips cut short by a stuck event
}

// TravelTime returns Arrival - Departure, or 0 for incomplete trips.
func (r TripRecord) TravelTime() float64 {
	if !r.Completed {
		return 0
	}
	return r.Arrival - r.Departure
}

// Trips rebuilds the trips of evs. Trips still open at the end of the stream
// are returned incomplete. The result is ordered by departure time, then
// person id.
func Trips(evs []events.Event) []TripRecord {
	open := make(map[string]*TripRecord)
	var done []TripRecord
	for _, e := range evs {
		switch e.Kind() {
		case events.KindDeparture:
			open[e.PersonID()] = &TripRecord{PersonID: e.PersonID(), VehicleID: e.VehicleID(), Departure: e.Time()}
		case events.KindLinkEntered:
			if r, ok := open[e.PersonID()]; ok {
				r.Links++
			}
		case events.KindArrival:
			if r, ok := open[e.PersonID()]; ok {
				r.Arrival = e.Time()
				r.Completed = true
				done = append(done, *r)
				delete(open, e.PersonID())
			}
		case events.KindStuck:
			if r, ok := open[e.PersonID()]; ok {
				done = append(done, *r)
				delete(open, e.PersonID())
			}
		}
	}
	for _, r := range open {
		done = append(done, *r)
	}
	sort.SliceStable(done, func(i, j int) bool {
		if done[i].Departure != done[j].Departure {
			return done[i].Departure < done[j].Departure
		}
		return done[i].PersonID < done[j].PersonID
	})
	return done
}
