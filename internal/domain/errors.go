package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphNotFound is returned when a run references an unregistered graph.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrRunNotFound is returned by status lookups for unknown run ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrMaxNestingDepthExceeded is returned when a nested invocation would
	// push the call stack past the configured maximum. The nested run is
	// never started.
	ErrMaxNestingDepthExceeded = errors.New("maximum nesting depth exceeded")

	// ErrGraphReentry is returned when a nested invocation targets a graph
	// whose name already appears on the call stack more often than the
	// repeat limit allows. This catches cycles across graphs that per-graph
	// acyclicity validation cannot see.
	ErrGraphReentry = errors.New("graph already on call stack")

	// ErrRunCancelled is the triggering error of a run stopped by the
	// caller's cancellation signal.
	ErrRunCancelled = errors.New("run cancelled")
)

// GraphInvalidError is a registration-time structural failure: a cycle, a
// dangling dependency or output reference, or a duplicate node id.
type GraphInvalidError struct {
	Graph  string
	Reason string
}

func (e *GraphInvalidError) Error() string {
	return fmt.Sprintf("graph %q invalid: %s", e.Graph, e.Reason)
}

// InputValidationError aborts a run before any node executes.
type InputValidationError struct {
	Input string
	Err   error
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("input %q validation failed: %v", e.Input, e.Err)
}

func (e *InputValidationError) Unwrap() error { return e.Err }

// NodeFailedError is surfaced after the resilience wrapper exhausts all
// attempts for a node. It triggers run failure and compensation.
type NodeFailedError struct {
	NodeID   string
	Attempts int
	Err      error
}

func (e *NodeFailedError) Error() string {
	return fmt.Sprintf("node %q failed after %d attempt(s): %v", e.NodeID, e.Attempts, e.Err)
}

func (e *NodeFailedError) Unwrap() error { return e.Err }

// OutputUnavailableError is returned when a declared output references a node
// that never recorded a result and no default was declared.
type OutputUnavailableError struct {
	Output string
	Node   string
}

func (e *OutputUnavailableError) Error() string {
	return fmt.Sprintf("output %q unavailable: node %q has no recorded result and no default", e.Output, e.Node)
}
