// Package orchestrator owns the graph registry and the run lifecycle.
//
// Graphs are validated structurally on registration and stay immutable
// afterwards. The Manager resolves registered graphs into runs, enforcing
// the nesting guards (maximum call-stack depth and per-graph re-entry
// limit) before any node executes, and hands the run to the scheduler.
// Finished runs are archived for later status and result lookup.
package orchestrator
