// Package scenario loads networks and plans from YAML files.
package scenario

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trafficsim/qsim/sim"
)

// Scenario is the YAML form of one simulation input.
type Scenario struct {
	Network NetworkSpec `yaml:"network"`
	Plans   []PlanSpec  `yaml:"plans"`
	// Horizon, when positive, bounds the simulated time.
	Horizon float64 `yaml:"horizon,omitempty"`
}

// NetworkSpec lists the links of the road network.
type NetworkSpec struct {
	Links []LinkSpec `yaml:"links"`
}

// LinkSpec describes one directed link. Capacity is in vehicles per hour,
// the unit network files usually carry; storage 0 is derived.
type LinkSpec struct {
	ID        string  `yaml:"id"`
	From      string  `yaml:"from"`
	To        string  `yaml:"to"`
	Length    float64 `yaml:"length"`
	FreeSpeed float64 `yaml:"freespeed"`
	Capacity  float64 `yaml:"capacity"`
	Lanes     int     `yaml:"lanes,omitempty"`
	Storage   int     `yaml:"storage,omitempty"`
}

// PlanSpec is one person's plan. Legs[i] routes from Activities[i] to
// Activities[i+1].
type PlanSpec struct {
	Person     string         `yaml:"person"`
	Vehicle    string         `yaml:"vehicle,omitempty"`
	Activities []ActivitySpec `yaml:"activities"`
	Legs       []LegSpec      `yaml:"legs"`
}

// ActivitySpec is one activity. End is in seconds; omitted ends on
// middle activities mean "leave on arrival".
type ActivitySpec struct {
	Type     string   `yaml:"type"`
	Link     string   `yaml:"link"`
	End      *float64 `yaml:"end,omitempty"`
	Duration float64  `yaml:"duration,omitempty"`
}

// LegSpec is the link sequence of one car trip.
type LegSpec struct {
	Route []string `yaml:"route"`
}

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a scenario from r.
func Parse(r io.Reader) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if len(s.Network.Links) == 0 {
		return nil, fmt.Errorf("parsing scenario: network has no links")
	}
	return &s, nil
}

// Build converts the scenario into a validated network and plans. Invalid
// content surfaces as *sim.ConfigurationError.
func (s *Scenario) Build() (*sim.Network, []sim.Plan, error) {
	links := make([]sim.Link, 0, len(s.Network.Links))
	for _, l := range s.Network.Links {
		links = append(links, sim.Link{
			ID:              l.ID,
			From:            l.From,
			To:              l.To,
			Length:          l.Length,
			FreeSpeed:       l.FreeSpeed,
			Lanes:           l.Lanes,
			FlowCapacity:    l.Capacity / 3600,
			StorageCapacity: l.Storage,
		})
	}
	net, err := sim.NewNetwork(links)
	if err != nil {
		return nil, nil, err
	}

	plans := make([]sim.Plan, 0, len(s.Plans))
	for _, p := range s.Plans {
		plan := sim.Plan{PersonID: p.Person, VehicleID: p.Vehicle}
		for i, a := range p.Activities {
			act := sim.Activity{Type: a.Type, LinkID: a.Link, Duration: a.Duration, EndTime: -1}
			if a.End != nil {
				act.EndTime = *a.End
			} else if i == 0 {
				act.EndTime = 0
			}
			plan.Activities = append(plan.Activities, act)
		}
		for _, l := range p.Legs {
			plan.Legs = append(plan.Legs, sim.Leg{Route: append([]string(nil), l.Route...)})
		}
		plans = append(plans, plan)
	}
	return net, plans, nil
}
