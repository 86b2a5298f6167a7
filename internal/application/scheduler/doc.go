// Package scheduler executes a validated graph: it computes readiness waves
// from the dependency edges, dispatches ready nodes concurrently through the
// per-node resilience wrapper, records results in the run's execution
// context, and on failure drives the saga compensation sweep.
package scheduler
