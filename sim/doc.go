// Package sim provides the queue-based traffic simulation engine.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - scheduler.go: EventQueue, the (due, seq) ordered record heap
//   - link.go: the physical queue of one link (free-flow delay, flow and storage capacity)
//   - vehicle.go: how a vehicle walks its plan, link to link
//   - engine.go: the run loop, stop/horizon handling and stall diagnosis
//
// # Architecture
//
// The engine is single-threaded. Every observable state change is reported as
// an events.Event to an events.Manager; handlers registered there compute
// everything else. Sub-packages hold the pieces around the kernel:
//   - sim/events/: Event, Handler and the causal, parallel and synchronized managers
//   - sim/scenario/: YAML loading of networks and plans
//   - sim/fingerprint/: run fingerprints for determinism checks
//   - sim/trace/: event log recording, replay and travel-time summaries
//   - sim/metrics/: Prometheus handler
//   - sim/recorder/: SQLite event recorder
//
// # Traffic model
//
// A vehicle entering a link at t may leave no earlier than t + length/freeSpeed.
// Departures from a link are at least 1/flowCapacity apart. A link never holds
// more than its storage capacity; a vehicle whose next link is full stays at
// the head of its current link, blocking the vehicles behind it (spillback).
// Space freed on a link goes to the vehicle that has waited longest.
package sim
