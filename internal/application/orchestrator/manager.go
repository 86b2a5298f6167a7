package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/floworc/floworc/internal/application/scheduler"
	"github.com/floworc/floworc/internal/domain"
	"github.com/floworc/floworc/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager coordinates run submission over the registered graphs. It tracks
// active executions for status lookup and cancellation, enforces the nesting
// guards on recursive graph invocations, and archives finished runs.
type Manager struct {
	registry  *Registry
	scheduler *scheduler.Scheduler
	archive   ports.RunArchive
	events    ports.EventBus
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	// Defaults applied when RunOptions leave a knob unset.
	maxNestingDepth  int
	graphRepeatLimit int
	concurrencyLimit int
	nodeTimeout      time.Duration

	// Track active executions
	active sync.Map // map[string]*activeRun
}

// activeRun holds the live state of one in-flight execution
type activeRun struct {
	ec     *scheduler.ExecutionContext
	cancel context.CancelFunc
}

// RunStatus is the read-only observability view of a run (live or archived).
type RunStatus struct {
	RunID          string                 `json:"run_id"`
	GraphName      string                 `json:"graph_name"`
	Status         domain.ExecutionStatus `json:"status"`
	CompletedNodes []string               `json:"completed_nodes"`
	StartedAt      time.Time              `json:"started_at"`
	Elapsed        time.Duration          `json:"elapsed"`
}

// NewManager creates a new orchestrator manager
func NewManager(
	registry *Registry,
	sched *scheduler.Scheduler,
	archive ports.RunArchive,
	events ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	maxNestingDepth, graphRepeatLimit, concurrencyLimit int,
	nodeTimeout time.Duration,
) *Manager {
	return &Manager{
		registry:         registry,
		scheduler:        sched,
		archive:          archive,
		events:           events,
		metrics:          metrics,
		logger:           logger,
		maxNestingDepth:  maxNestingDepth,
		graphRepeatLimit: graphRepeatLimit,
		concurrencyLimit: concurrencyLimit,
		nodeTimeout:      nodeTimeout,
	}
}

// Registry returns the graph registry backing this manager.
func (m *Manager) Registry() *Registry { return m.registry }

// preparedRun is a run that passed every pre-execution check but has not
// started yet. Preparation short-circuits before any node executes, so
// failures here never trigger compensation.
type preparedRun struct {
	graph *domain.Graph
	ec    *scheduler.ExecutionContext
	stack callStack
	opts  domain.RunOptions
}

// Run executes the named graph synchronously: the caller suspends until
// completion, failure or cancellation. When invoked from inside another
// run's node executor the context carries that run's call stack and the
// nesting guards apply before the nested run starts.
func (m *Manager) Run(ctx context.Context, graphName string, input map[string]interface{}, opts domain.RunOptions) (*domain.RunResult, error) {
	r, err := m.prepare(ctx, graphName, input, opts)
	if err != nil {
		return nil, err
	}
	return m.execute(ctx, r)
}

// Submit starts the named graph asynchronously and returns its run id. The
// run is detached from the caller's context: cancelling the submitting
// request does not cancel the run, CancelRun does.
func (m *Manager) Submit(ctx context.Context, graphName string, input map[string]interface{}, opts domain.RunOptions) (string, error) {
	r, err := m.prepare(ctx, graphName, input, opts)
	if err != nil {
		return "", err
	}

	go func() {
		if _, err := m.execute(context.WithoutCancel(ctx), r); err != nil {
			m.logger.Error("run failed",
				zap.String("run_id", r.ec.RunID()),
				zap.String("graph", graphName),
				zap.Error(err))
		}
	}()

	return r.ec.RunID(), nil
}

// prepare resolves the graph, applies the nesting guards and validates the
// run-level input. It creates the execution context with its own frame
// already pushed onto the call stack.
func (m *Manager) prepare(ctx context.Context, graphName string, input map[string]interface{}, opts domain.RunOptions) (*preparedRun, error) {
	g, err := m.registry.Resolve(graphName)
	if err != nil {
		return nil, err
	}

	parent, nested := callStackFrom(ctx)

	maxDepth := opts.MaxNestingDepth
	if maxDepth <= 0 {
		if nested {
			maxDepth = parent.maxDepth
		} else {
			maxDepth = m.maxNestingDepth
		}
	}
	repeatLimit := opts.GraphRepeatLimit
	if repeatLimit <= 0 {
		if nested {
			repeatLimit = parent.repeatLimit
		} else {
			repeatLimit = m.graphRepeatLimit
		}
	}
	concurrency := opts.ConcurrencyLimit
	if concurrency <= 0 {
		concurrency = m.concurrencyLimit
	}
	nodeTimeout := opts.DefaultNodeTimeout
	if nodeTimeout <= 0 {
		nodeTimeout = m.nodeTimeout
	}

	if nested {
		if maxDepth > 0 && len(parent.frames) >= maxDepth {
			return nil, fmt.Errorf("graph %q at depth %d: %w", graphName, len(parent.frames), domain.ErrMaxNestingDepthExceeded)
		}
		if parent.repeats(graphName) > repeatLimit {
			return nil, fmt.Errorf("graph %q: %w", graphName, domain.ErrGraphReentry)
		}
	}

	if input == nil {
		input = make(map[string]interface{})
	}
	for _, spec := range g.Inputs() {
		if spec.Validate == nil {
			continue
		}
		if err := spec.Validate(input[spec.Name]); err != nil {
			return nil, &domain.InputValidationError{Input: spec.Name, Err: err}
		}
	}

	runID := uuid.New().String()
	frames := make([]domain.Frame, 0, len(parent.frames)+1)
	frames = append(frames, parent.frames...)
	frames = append(frames, domain.Frame{GraphName: graphName, RunID: runID})

	return &preparedRun{
		graph: g,
		ec:    scheduler.NewExecutionContext(runID, graphName, input, frames),
		stack: callStack{frames: frames, maxDepth: maxDepth, repeatLimit: repeatLimit},
		opts: domain.RunOptions{
			ConcurrencyLimit:   concurrency,
			MaxNestingDepth:    maxDepth,
			GraphRepeatLimit:   repeatLimit,
			DefaultNodeTimeout: nodeTimeout,
		},
	}, nil
}

// execute drives a prepared run through the scheduler and archives the
// outcome.
func (m *Manager) execute(ctx context.Context, r *preparedRun) (*domain.RunResult, error) {
	runID := r.ec.RunID()

	runCtx, cancel := context.WithCancel(withCallStack(ctx, r.stack))
	m.active.Store(runID, &activeRun{ec: r.ec, cancel: cancel})
	defer func() {
		m.active.Delete(runID)
		cancel()
		m.observeActive()
	}()

	if m.metrics != nil {
		m.metrics.RecordRunSubmitted(r.graph.Name)
		m.metrics.ObserveNestingDepth(len(r.stack.frames))
	}
	m.observeActive()
	m.publishRunSubmitted(ctx, r)

	m.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("graph", r.graph.Name),
		zap.Int("depth", len(r.stack.frames)))

	result, err := m.scheduler.Execute(runCtx, r.graph, r.ec, r.opts)

	if m.archive != nil {
		if aerr := m.archive.Save(context.WithoutCancel(ctx), result); aerr != nil {
			m.logger.Error("failed to archive run",
				zap.String("run_id", runID),
				zap.Error(aerr))
		}
	}

	return result, err
}

// GetStatus returns the observability view of a run, live or archived.
func (m *Manager) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	if val, ok := m.active.Load(runID); ok {
		ec := val.(*activeRun).ec
		return &RunStatus{
			RunID:          runID,
			GraphName:      ec.GraphName(),
			Status:         ec.Status(),
			CompletedNodes: ec.Completed(),
			StartedAt:      ec.StartedAt(),
			Elapsed:        ec.Elapsed(),
		}, nil
	}

	if m.archive != nil {
		if result, err := m.archive.Get(ctx, runID); err == nil {
			return &RunStatus{
				RunID:          runID,
				GraphName:      result.GraphName,
				Status:         result.Status,
				CompletedNodes: completedNodes(result),
				StartedAt:      result.StartedAt,
				Elapsed:        result.CompletedAt.Sub(result.StartedAt),
			}, nil
		}
	}

	return nil, fmt.Errorf("%q: %w", runID, domain.ErrRunNotFound)
}

// GetResult returns the archived full result of a finished run.
func (m *Manager) GetResult(ctx context.Context, runID string) (*domain.RunResult, error) {
	if m.archive == nil {
		return nil, fmt.Errorf("%q: %w", runID, domain.ErrRunNotFound)
	}
	result, err := m.archive.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", runID, domain.ErrRunNotFound)
	}
	return result, nil
}

// CancelRun raises the cancellation signal of an active run. The scheduler
// stops dispatching new waves, lets the in-flight wave drain, and runs the
// compensation sweep with RunCancelled as the triggering error.
func (m *Manager) CancelRun(runID string) error {
	val, ok := m.active.Load(runID)
	if !ok {
		return fmt.Errorf("%q: %w", runID, domain.ErrRunNotFound)
	}

	run := val.(*activeRun)
	if status := run.ec.Status(); status.Terminal() {
		return fmt.Errorf("run %s already in terminal state: %s", runID, status)
	}

	run.cancel()

	if m.events != nil {
		event := ports.Event{
			ID:        uuid.New().String(),
			Type:      ports.EventTypeRunCancelled,
			RunID:     runID,
			GraphName: run.ec.GraphName(),
			Timestamp: time.Now(),
		}
		if err := m.events.Publish(context.Background(), ports.TopicRunEvents, event); err != nil {
			m.logger.Error("failed to publish run cancelled event",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}

	m.logger.Info("run cancellation requested",
		zap.String("run_id", runID))

	return nil
}

// SubgraphExecutor returns a node executor that invokes another registered
// graph as a nested run. The nested run inherits the parent's call stack and
// limits through the context; the parent node only sees the child's declared
// outputs on success, or its single triggering error on failure. derive maps
// the node's resolved input to the child's run input; nil passes the parent
// run input through unchanged.
func (m *Manager) SubgraphExecutor(graphName string, derive func(domain.NodeInput) map[string]interface{}) domain.NodeExecutor {
	return func(ctx context.Context, input domain.NodeInput, _ domain.ContextView) (interface{}, error) {
		childInput := input.Run
		if derive != nil {
			childInput = derive(input)
		}

		result, err := m.Run(ctx, graphName, childInput, domain.RunOptions{})
		if err != nil {
			return nil, err
		}
		return result.Outputs, nil
	}
}

// ArchivedRuns returns the ids of all archived runs.
func (m *Manager) ArchivedRuns(ctx context.Context) ([]string, error) {
	if m.archive == nil {
		return nil, nil
	}
	return m.archive.List(ctx)
}

// ActiveRuns returns the status of every in-flight run, sorted by run id.
func (m *Manager) ActiveRuns() []*RunStatus {
	var statuses []*RunStatus
	m.active.Range(func(key, value interface{}) bool {
		ec := value.(*activeRun).ec
		statuses = append(statuses, &RunStatus{
			RunID:          ec.RunID(),
			GraphName:      ec.GraphName(),
			Status:         ec.Status(),
			CompletedNodes: ec.Completed(),
			StartedAt:      ec.StartedAt(),
			Elapsed:        ec.Elapsed(),
		})
		return true
	})
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].RunID < statuses[j].RunID })
	return statuses
}

// Shutdown cancels all active runs and waits for nothing further; in-flight
// compensation sweeps finish on their own goroutines.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.active.Range(func(key, value interface{}) bool {
		value.(*activeRun).cancel()
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}

func (m *Manager) observeActive() {
	if m.metrics == nil {
		return
	}
	count := 0
	m.active.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	m.metrics.SetActiveRuns(count)
}

func (m *Manager) publishRunSubmitted(ctx context.Context, r *preparedRun) {
	if m.events == nil {
		return
	}
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeRunSubmitted,
		RunID:     r.ec.RunID(),
		GraphName: r.graph.Name,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"depth": len(r.stack.frames),
		},
	}
	if err := m.events.Publish(ctx, ports.TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish run submitted event",
			zap.String("run_id", r.ec.RunID()),
			zap.Error(err))
	}
}

// completedNodes lists an archived run's completed node ids ordered by
// completion time (the archive does not retain the live completion order).
func completedNodes(result *domain.RunResult) []string {
	var nodes []*domain.NodeResult
	for _, res := range result.NodeResults {
		if res.Status == domain.ExecutionStatusCompleted {
			nodes = append(nodes, res)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].CompletedAt.Before(nodes[j].CompletedAt) })

	ids := make([]string, len(nodes))
	for i, res := range nodes {
		ids[i] = res.NodeID
	}
	return ids
}
