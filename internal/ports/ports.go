package ports

import (
	"context"
	"time"

	"github.com/floworc/floworc/internal/domain"
)

// EventType classifies lifecycle events published by the engine.
type EventType string

const (
	EventTypeRunSubmitted   EventType = "run.submitted"
	EventTypeRunCompleted   EventType = "run.completed"
	EventTypeRunFailed      EventType = "run.failed"
	EventTypeRunCancelled   EventType = "run.cancelled"
	EventTypeRunCompensated EventType = "run.compensated"
	EventTypeNodeStarted    EventType = "node.started"
	EventTypeNodeCompleted  EventType = "node.completed"
	EventTypeNodeFailed     EventType = "node.failed"
	EventTypeNodeRetried    EventType = "node.retried"
)

// Topics the engine publishes on.
const (
	TopicRunEvents  = "run.events"
	TopicNodeEvents = "node.events"
)

// Event is a single lifecycle notification. The engine publishes events
// synchronously at well-defined points (node start/end, run end); consumers
// must not block.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	GraphName string                 `json:"graph_name,omitempty"`
	NodeID    string                 `json:"node_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler consumes events from a subscription.
type EventHandler func(ctx context.Context, event Event) error

// EventBus decouples the engine from event consumers (WebSocket streams,
// external monitors).
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// RunArchive stores finished run results for external inspection. The engine
// writes a run exactly once, at run end; execution state never lives here
// while a run is in flight.
type RunArchive interface {
	Save(ctx context.Context, result *domain.RunResult) error
	Get(ctx context.Context, runID string) (*domain.RunResult, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, runID string) error
}

// MetricsCollector receives engine metrics. Implementations must be safe for
// concurrent use.
type MetricsCollector interface {
	RecordRunSubmitted(graphName string)
	RecordRunCompleted(graphName string, status domain.ExecutionStatus, duration time.Duration)
	RecordNodeExecuted(graphName string, status domain.ExecutionStatus, duration time.Duration)
	RecordNodeRetry(graphName, nodeID string)
	RecordCompensation(graphName string, failed bool)
	SetActiveRuns(count int)
	ObserveNestingDepth(depth int)
}

// LLMRequest is a single completion request to a language model provider.
type LLMRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// LLMClient abstracts the language model provider used by LLM-backed node
// executors.
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *LLMRequest) (string, error)
}
