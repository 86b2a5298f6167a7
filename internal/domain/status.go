package domain

// ExecutionStatus represents the lifecycle state of a run or a node
type ExecutionStatus string

const (
	ExecutionStatusPending      ExecutionStatus = "pending"
	ExecutionStatusRunning      ExecutionStatus = "running"
	ExecutionStatusCompleted    ExecutionStatus = "completed"
	ExecutionStatusFailed       ExecutionStatus = "failed"
	ExecutionStatusCompensating ExecutionStatus = "compensating"
	ExecutionStatusCompensated  ExecutionStatus = "compensated"
)

// Terminal reports whether an execution in this status stops making progress.
// A failed run still moves through the compensation sub-sequence before its
// result is archived.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCompensated:
		return true
	}
	return false
}
