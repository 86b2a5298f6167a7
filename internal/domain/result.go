package domain

import "time"

// NodeResult records the outcome of one node within a run. A node's result is
// written exactly once, by the goroutine that ran it.
type NodeResult struct {
	NodeID      string          `json:"node_id"`
	Status      ExecutionStatus `json:"status"`
	Output      interface{}     `json:"output,omitempty"`
	Attempts    int             `json:"attempts"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
}

// CompensationEntry records one compensation invocation during the saga
// sweep. Err is nil when the action succeeded.
type CompensationEntry struct {
	NodeID string `json:"node_id"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

// CompensationReport is the result of the one-pass, best-effort rollback
// sweep that runs when a run fails. It carries the original triggering error,
// the nodes visited in reverse completion order, and any compensation
// failures so the caller can decide on manual remediation.
type CompensationReport struct {
	TriggeredBy string              `json:"triggered_by"`
	Compensated []string            `json:"compensated"`
	Failures    []CompensationEntry `json:"failures,omitempty"`
}

// RunOptions are caller-supplied knobs for a single run.
type RunOptions struct {
	// ConcurrencyLimit bounds how many same-wave nodes execute concurrently.
	// Zero means unbounded within a run.
	ConcurrencyLimit int `json:"concurrency_limit"`

	// MaxNestingDepth bounds the call stack of nested graph invocations.
	// Zero falls back to the configured default.
	MaxNestingDepth int `json:"max_nesting_depth"`

	// GraphRepeatLimit is how many times a graph name may reappear on the
	// call stack below its own frame. Zero means no repeats: a graph can
	// never invoke itself, directly or indirectly.
	GraphRepeatLimit int `json:"graph_repeat_limit"`

	// DefaultNodeTimeout bounds a single node attempt when the node's own
	// retry policy declares no timeout. Zero leaves such attempts unbounded.
	DefaultNodeTimeout time.Duration `json:"default_node_timeout"`
}

// Frame is one entry of the nested-invocation call stack.
type Frame struct {
	GraphName string `json:"graph_name"`
	RunID     string `json:"run_id"`
}

// RunResult is the full outcome of a run. On failure it still carries the
// partial node results recorded before the failure; they are never discarded.
type RunResult struct {
	RunID       string                 `json:"run_id"`
	GraphName   string                 `json:"graph_name"`
	Status      ExecutionStatus        `json:"status"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	NodeResults map[string]*NodeResult `json:"node_results"`
	Pending     []string               `json:"pending,omitempty"`
	FailedNode  string                 `json:"failed_node,omitempty"`
	Report      *CompensationReport    `json:"compensation,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Error       string                 `json:"error,omitempty"`
}
