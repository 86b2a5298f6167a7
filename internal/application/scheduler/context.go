package scheduler

import (
	"sync"
	"time"

	"github.com/floworc/floworc/internal/domain"
)

// ExecutionContext holds the mutable state of a single run. It is created
// fresh per run and owned by the scheduler for the run's duration. The result
// map is the only state shared across concurrent node executions: each node
// id is written exactly once, by the goroutine that ran the node, and readers
// observe a result only after its node completed.
type ExecutionContext struct {
	runID     string
	graphName string
	input     map[string]interface{}
	stack     []domain.Frame
	startedAt time.Time

	mu         sync.RWMutex
	status     domain.ExecutionStatus
	results    map[string]*domain.NodeResult
	completion []string
}

// NewExecutionContext creates the state for a fresh run. The stack is the
// chain of nested invocations leading to this run, including its own frame.
func NewExecutionContext(runID, graphName string, input map[string]interface{}, stack []domain.Frame) *ExecutionContext {
	frames := make([]domain.Frame, len(stack))
	copy(frames, stack)

	return &ExecutionContext{
		runID:     runID,
		graphName: graphName,
		input:     input,
		stack:     frames,
		startedAt: time.Now(),
		status:    domain.ExecutionStatusPending,
		results:   make(map[string]*domain.NodeResult),
	}
}

// RunID returns the globally unique id of this run.
func (ec *ExecutionContext) RunID() string { return ec.runID }

// GraphName returns the name of the graph being executed.
func (ec *ExecutionContext) GraphName() string { return ec.graphName }

// Input returns the run-level input.
func (ec *ExecutionContext) Input() map[string]interface{} { return ec.input }

// Stack returns a copy of the nested-invocation call stack.
func (ec *ExecutionContext) Stack() []domain.Frame {
	frames := make([]domain.Frame, len(ec.stack))
	copy(frames, ec.stack)
	return frames
}

// StartedAt returns when the run was created.
func (ec *ExecutionContext) StartedAt() time.Time { return ec.startedAt }

// Elapsed returns how long the run has been going.
func (ec *ExecutionContext) Elapsed() time.Duration { return time.Since(ec.startedAt) }

// Status returns the current run status.
func (ec *ExecutionContext) Status() domain.ExecutionStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.status
}

// SetStatus transitions the run status.
func (ec *ExecutionContext) SetStatus(s domain.ExecutionStatus) {
	ec.mu.Lock()
	ec.status = s
	ec.mu.Unlock()
}

// Record publishes a node's result. A node id is recorded at most once;
// later writes for the same id are ignored. Completed nodes are appended to
// the completion order used by the compensation sweep.
func (ec *ExecutionContext) Record(res *domain.NodeResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if _, exists := ec.results[res.NodeID]; exists {
		return
	}

	ec.results[res.NodeID] = res
	if res.Status == domain.ExecutionStatusCompleted {
		ec.completion = append(ec.completion, res.NodeID)
	}
}

// Result returns the output of a node, visible only once the node completed.
// Implements domain.ContextView.
func (ec *ExecutionContext) Result(nodeID string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	res, ok := ec.results[nodeID]
	if !ok || res.Status != domain.ExecutionStatusCompleted {
		return nil, false
	}
	return res.Output, true
}

// Completed returns node ids in completion order.
func (ec *ExecutionContext) Completed() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make([]string, len(ec.completion))
	copy(out, ec.completion)
	return out
}

// NodeRecord returns the full result record of a node, completed or failed.
func (ec *ExecutionContext) NodeRecord(nodeID string) (*domain.NodeResult, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	res, ok := ec.results[nodeID]
	return res, ok
}

// Snapshot returns a copy of every recorded node result.
func (ec *ExecutionContext) Snapshot() map[string]*domain.NodeResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make(map[string]*domain.NodeResult, len(ec.results))
	for id, res := range ec.results {
		c := *res
		out[id] = &c
	}
	return out
}

var _ domain.ContextView = (*ExecutionContext)(nil)
