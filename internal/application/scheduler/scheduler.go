package scheduler

import (
	"context"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"github.com/floworc/floworc/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler drives one run at a time through readiness waves. It is
// stateless across runs; all per-run state lives in the ExecutionContext.
type Scheduler struct {
	events  ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. events and metrics may be nil.
func NewScheduler(events ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// waveOutcome is the per-node error map of one dispatched wave.
type waveOutcome map[string]error

// Execute runs the graph to completion, failure or cancellation. On failure
// (including cancellation and output derivation failure) the compensation
// sweep runs before the error is returned. The returned RunResult is non-nil
// in every case and retains partial node results.
func (s *Scheduler) Execute(ctx context.Context, g *domain.Graph, ec *ExecutionContext, opts domain.RunOptions) (*domain.RunResult, error) {
	ec.SetStatus(domain.ExecutionStatusRunning)

	indegree := make(map[string]int, g.Len())
	dispatched := make(map[string]bool, g.Len())
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		indegree[id] = len(node.DependsOn)
	}
	dependents := g.Dependents()

	var (
		failure    error
		failedNode string
	)

	ready := s.collectReady(g, indegree, dispatched)
	for len(ready) > 0 {
		if err := ctx.Err(); err != nil {
			failure = domain.ErrRunCancelled
			break
		}

		for _, id := range ready {
			dispatched[id] = true
		}

		outcome := s.dispatchWave(ctx, g, ec, ready, opts)

		// The whole wave has drained; completed results are kept even when
		// a sibling failed. Cancellation raised mid-wave takes precedence
		// over individual node errors from the same wave.
		if err := ctx.Err(); err != nil {
			failure = domain.ErrRunCancelled
			break
		}
		for _, id := range ready {
			if err := outcome[id]; err != nil && failure == nil {
				failure = err
				failedNode = id
			}
		}
		if failure != nil {
			break
		}

		for _, id := range ready {
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		ready = s.collectReady(g, indegree, dispatched)
	}

	if failure == nil {
		if err := ctx.Err(); err != nil {
			failure = domain.ErrRunCancelled
		}
	}

	var outputs map[string]interface{}
	if failure == nil {
		var err error
		outputs, err = deriveOutputs(g, ec)
		if err != nil {
			failure = err
		}
	}

	if failure != nil {
		// Mark the run failed before the sweep starts so status lookups
		// observe Failed ahead of the Compensating transition.
		ec.SetStatus(domain.ExecutionStatusFailed)
		s.publishRunEvent(ctx, ec, ports.EventTypeRunFailed, map[string]interface{}{
			"failed_node": failedNode,
			"error":       failure.Error(),
		})

		report := s.compensate(context.WithoutCancel(ctx), g, ec, failure)
		result := s.buildResult(g, ec, dispatched, outputs, failedNode, failure, report)
		s.publishRunEvent(ctx, ec, ports.EventTypeRunCompensated, map[string]interface{}{
			"compensated": report.Compensated,
		})
		s.observeRunEnd(g.Name, ec)
		return result, failure
	}

	ec.SetStatus(domain.ExecutionStatusCompleted)
	result := s.buildResult(g, ec, dispatched, outputs, "", nil, nil)
	s.publishRunEvent(ctx, ec, ports.EventTypeRunCompleted, map[string]interface{}{
		"outputs": outputs,
	})
	s.observeRunEnd(g.Name, ec)

	s.logger.Info("run completed",
		zap.String("run_id", ec.RunID()),
		zap.String("graph", g.Name),
		zap.Duration("duration", ec.Elapsed()),
		zap.Int("nodes", g.Len()))

	return result, nil
}

// collectReady returns undispatched nodes with no unsatisfied dependencies,
// in graph insertion order. Insertion order is the dispatch tie-break that
// keeps runs reproducible.
func (s *Scheduler) collectReady(g *domain.Graph, indegree map[string]int, dispatched map[string]bool) []string {
	var ready []string
	for _, id := range g.NodeIDs() {
		if !dispatched[id] && indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// dispatchWave runs every node of the wave concurrently, bounded by the
// concurrency limit when positive. Goroutines are launched in wave order;
// the semaphore is acquired before launch so dispatch order stays
// deterministic under a concurrency limit. Results are recorded in the
// execution context as each node finishes.
func (s *Scheduler) dispatchWave(ctx context.Context, g *domain.Graph, ec *ExecutionContext, wave []string, opts domain.RunOptions) waveOutcome {
	var sem chan struct{}
	if opts.ConcurrencyLimit > 0 {
		sem = make(chan struct{}, opts.ConcurrencyLimit)
	}

	type nodeOutcome struct {
		nodeID string
		err    error
	}

	results := make(chan nodeOutcome, len(wave))
	for _, id := range wave {
		node, _ := g.Node(id)
		if sem != nil {
			sem <- struct{}{}
		}

		go func(node *domain.Node) {
			if sem != nil {
				defer func() { <-sem }()
			}
			results <- nodeOutcome{nodeID: node.ID, err: s.runNode(ctx, ec, node, opts.DefaultNodeTimeout)}
		}(node)
	}

	outcome := make(waveOutcome, len(wave))
	for range wave {
		r := <-results
		outcome[r.nodeID] = r.err
	}
	return outcome
}

// runNode executes one node through the resilience wrapper and records its
// result. Dependency outputs are resolved at dispatch time; the scheduler
// only dispatches a node once all its dependencies completed, so every
// lookup succeeds.
func (s *Scheduler) runNode(ctx context.Context, ec *ExecutionContext, node *domain.Node, defaultTimeout time.Duration) error {
	deps := make(map[string]interface{}, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		if out, ok := ec.Result(dep); ok {
			deps[dep] = out
		}
	}
	input := domain.NodeInput{Run: ec.Input(), Deps: deps}

	s.publishNodeEvent(ctx, ec, node.ID, ports.EventTypeNodeStarted, nil)

	startedAt := time.Now()
	output, attempts, err := s.runWithResilience(ctx, node, input, ec, defaultTimeout)
	completedAt := time.Now()

	res := &domain.NodeResult{
		NodeID:      node.ID,
		Attempts:    attempts,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}

	if err != nil {
		res.Status = domain.ExecutionStatusFailed
		res.Error = err.Error()
	} else {
		res.Status = domain.ExecutionStatusCompleted
		res.Output = output
	}
	ec.Record(res)

	if s.metrics != nil {
		s.metrics.RecordNodeExecuted(ec.GraphName(), res.Status, completedAt.Sub(startedAt))
	}

	if err != nil {
		s.publishNodeEvent(ctx, ec, node.ID, ports.EventTypeNodeFailed, map[string]interface{}{
			"error":    err.Error(),
			"attempts": attempts,
		})
		return err
	}

	s.publishNodeEvent(ctx, ec, node.ID, ports.EventTypeNodeCompleted, map[string]interface{}{
		"attempts": attempts,
	})
	return nil
}

// deriveOutputs applies the graph's output rules to the final context.
func deriveOutputs(g *domain.Graph, ec *ExecutionContext) (map[string]interface{}, error) {
	specs := g.Outputs()
	outputs := make(map[string]interface{}, len(specs))

	for _, spec := range specs {
		if spec.Combine != nil {
			value, err := spec.Combine(ec)
			if err != nil {
				return nil, err
			}
			outputs[spec.Name] = value
			continue
		}

		if value, ok := ec.Result(spec.FromNode); ok {
			outputs[spec.Name] = value
			continue
		}
		if spec.HasDefault {
			outputs[spec.Name] = spec.Default
			continue
		}
		return nil, &domain.OutputUnavailableError{Output: spec.Name, Node: spec.FromNode}
	}

	return outputs, nil
}

// buildResult assembles the externally visible run result.
func (s *Scheduler) buildResult(g *domain.Graph, ec *ExecutionContext, dispatched map[string]bool, outputs map[string]interface{}, failedNode string, failure error, report *domain.CompensationReport) *domain.RunResult {
	var pending []string
	for _, id := range g.NodeIDs() {
		if !dispatched[id] {
			pending = append(pending, id)
		}
	}

	result := &domain.RunResult{
		RunID:       ec.RunID(),
		GraphName:   ec.GraphName(),
		Status:      ec.Status(),
		Outputs:     outputs,
		NodeResults: ec.Snapshot(),
		Pending:     pending,
		FailedNode:  failedNode,
		Report:      report,
		StartedAt:   ec.StartedAt(),
		CompletedAt: time.Now(),
	}
	if failure != nil {
		result.Error = failure.Error()
	}
	return result
}

func (s *Scheduler) observeRunEnd(graphName string, ec *ExecutionContext) {
	if s.metrics != nil {
		s.metrics.RecordRunCompleted(graphName, ec.Status(), ec.Elapsed())
	}
}

func (s *Scheduler) notifyRetry(ctx context.Context, ec *ExecutionContext, nodeID string, attempt int) {
	if s.metrics != nil {
		s.metrics.RecordNodeRetry(ec.GraphName(), nodeID)
	}
	if s.events == nil {
		return
	}
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeNodeRetried,
		RunID:     ec.RunID(),
		GraphName: ec.GraphName(),
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"attempt": attempt},
	}
	if err := s.events.Publish(ctx, ports.TopicNodeEvents, event); err != nil {
		s.logger.Error("failed to publish retry event",
			zap.String("run_id", ec.RunID()),
			zap.String("node_id", nodeID),
			zap.Error(err))
	}
}

func (s *Scheduler) publishNodeEvent(ctx context.Context, ec *ExecutionContext, nodeID string, eventType ports.EventType, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     ec.RunID(),
		GraphName: ec.GraphName(),
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := s.events.Publish(ctx, ports.TopicNodeEvents, event); err != nil {
		s.logger.Error("failed to publish node event",
			zap.String("run_id", ec.RunID()),
			zap.String("node_id", nodeID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (s *Scheduler) publishRunEvent(ctx context.Context, ec *ExecutionContext, eventType ports.EventType, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     ec.RunID(),
		GraphName: ec.GraphName(),
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := s.events.Publish(ctx, ports.TopicRunEvents, event); err != nil {
		s.logger.Error("failed to publish run event",
			zap.String("run_id", ec.RunID()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
