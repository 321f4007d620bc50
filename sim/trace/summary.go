package trace

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/trafficsim/qsim/sim/events"
)

// TraceSummary aggregates statistics from a recorded event stream.
type TraceSummary struct {
	TotalEvents      int
	Trips            int
	CompletedTrips   int
	StuckVehicles    int
	MeanTravelTime   float64
	StdTravelTime    float64
	P95TravelTime    float64
	MaxTravelTime    float64
	KindDistribution map[string]int // kind name → count of events
}

// Summarize computes aggregate statistics from evs.
// Safe for nil or empty streams (returns zero-value fields).
func Summarize(evs []events.Event) *TraceSummary {
	summary := &TraceSummary{
		KindDistribution: make(map[string]int),
	}
	summary.TotalEvents = len(evs)
	for _, e := range evs {
		summary.KindDistribution[e.Kind().String()]++
		if e.Kind() == events.KindStuck {
			summary.StuckVehicles++
		}
	}

	trips := Trips(evs)
	summary.Trips = len(trips)
	var tt []float64
	for _, r := range trips {
		if r.Completed {
			tt = append(tt, r.TravelTime())
		}
	}
	summary.CompletedTrips = len(tt)
	if len(tt) == 0 {
		return summary
	}

	sort.Float64s(tt)
	summary.MeanTravelTime, summary.StdTravelTime = stat.MeanStdDev(tt, nil)
	if len(tt) == 1 {
		summary.StdTravelTime = 0
	}
	summary.P95TravelTime = stat.Quantile(0.95, stat.Empirical, tt, nil)
	summary.MaxTravelTime = tt[len(tt)-1]
	return summary
}
