// Package metrics exports simulation events as Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trafficsim/qsim/sim/events"
)

// TravelTimeBuckets spans one minute to four hours.
var TravelTimeBuckets = prometheus.ExponentialBuckets(60, 2, 8)

// PromHandler is an events.Handler recording event counts, trip travel
// times, vehicles en route and the latest simulated time.
type PromHandler struct {
	events     *prometheus.CounterVec
	travelTime prometheus.Histogram
	enRoute    prometheus.Gauge
	simTime    prometheus.Gauge

	mu       sync.Mutex
	departed map[string]float64 // person → departure time of the open trip
}

// NewPromHandler registers the simulation metrics on reg. If reg is nil, the
// default registerer is used. If the collectors are already registered, the
// existing ones are reused.
func NewPromHandler(reg prometheus.Registerer) (*PromHandler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	evs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qsim_events_total",
		Help: "Total number of simulation events by kind",
	}, []string{"kind"})
	travelTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qsim_trip_travel_time_seconds",
		Help:    "Simulated time from departure to arrival of completed trips",
		Buckets: TravelTimeBuckets,
	})
	enRoute := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qsim_vehicles_en_route",
		Help: "Vehicles departed and not yet arrived",
	})
	simTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qsim_simulation_time_seconds",
		Help: "Time of the latest processed event",
	})

	var err error
	if evs, err = register(reg, evs); err != nil {
		return nil, err
	}
	if travelTime, err = register(reg, travelTime); err != nil {
		return nil, err
	}
	if enRoute, err = register(reg, enRoute); err != nil {
		return nil, err
	}
	if simTime, err = register(reg, simTime); err != nil {
		return nil, err
	}
	return &PromHandler{
		events:     evs,
		travelTime: travelTime,
		enRoute:    enRoute,
		simTime:    simTime,
		departed:   make(map[string]float64),
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (h *PromHandler) String() string { return "prometheus" }

// HandleEvent updates the metrics for e.
func (h *PromHandler) HandleEvent(e events.Event) error {
	h.events.WithLabelValues(e.Kind().String()).Inc()
	h.simTime.Set(e.Time())

	h.mu.Lock()
	defer h.mu.Unlock()
	switch e.Kind() {
	case events.KindDeparture:
		h.departed[e.PersonID()] = e.Time()
		h.enRoute.Inc()
	case events.KindArrival:
		if dep, ok := h.departed[e.PersonID()]; ok {
			h.travelTime.Observe(e.Time() - dep)
			delete(h.departed, e.PersonID())
			h.enRoute.Dec()
		}
	case events.KindStuck:
		if _, ok := h.departed[e.PersonID()]; ok {
			delete(h.departed, e.PersonID())
			h.enRoute.Dec()
		}
	}
	return nil
}

// Reset forgets open trips. Counters keep accumulating across runs.
func (h *PromHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.departed)
	h.enRoute.Set(0)
}
