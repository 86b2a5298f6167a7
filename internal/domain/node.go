package domain

import (
	"context"
	"time"
)

// NodeExecutor is the opaque work a node performs. It receives the resolved
// input for the node and a read-only view of prior results, and produces an
// output value or an error. Executors may be invoked up to
// RetryPolicy.MaxAttempts times per run; idempotency of partial side effects
// is the executor's responsibility, not the engine's.
type NodeExecutor func(ctx context.Context, input NodeInput, view ContextView) (interface{}, error)

// CompensationAction undoes the effect of a completed node. It receives the
// node's recorded output. Failures are collected into the run's compensation
// report; they never abort the sweep over the remaining nodes.
type CompensationAction func(ctx context.Context, output interface{}) error

// Validator checks a run-level input value before any node executes.
type Validator func(value interface{}) error

// NodeInput is the resolved input of a single node execution: the run-level
// input plus the recorded outputs of the node's direct dependencies, keyed by
// dependency node id.
type NodeInput struct {
	Run  map[string]interface{}
	Deps map[string]interface{}
}

// ContextView is the read-only window a node executor or output combiner
// gets into the current run. Results become visible only after the owning
// node completed; the run-level input is available throughout.
type ContextView interface {
	RunID() string
	Input() map[string]interface{}
	Result(nodeID string) (interface{}, bool)
	Completed() []string
}

// RetryPolicy configures the resilience wrapper around a single node.
// Backoff between attempts is BaseBackoff * 2^(attempt-1), jitterless.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	Timeout     time.Duration `json:"timeout"`
}

// Normalize returns the policy with zero values replaced by usable defaults.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Node is a named step inside a Graph.
type Node struct {
	ID         string
	DependsOn  []string
	Execute    NodeExecutor
	Compensate CompensationAction
	Policy     RetryPolicy
}
