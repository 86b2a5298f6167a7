package scheduler

import (
	"context"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"go.uber.org/zap"
)

// compensate performs the saga rollback sweep for a failed run. It visits
// every node with a completed result in reverse completion order and invokes
// its compensation action with the recorded output. The sweep is one
// best-effort pass: action failures are collected into the report and never
// stop the remaining compensations, and nothing is retried. The run ends in
// Compensated even when some actions failed; the caller decides on manual
// remediation from the report.
func (s *Scheduler) compensate(ctx context.Context, g *domain.Graph, ec *ExecutionContext, trigger error) *domain.CompensationReport {
	ec.SetStatus(domain.ExecutionStatusCompensating)

	report := &domain.CompensationReport{
		TriggeredBy: trigger.Error(),
	}

	completed := ec.Completed()
	for i := len(completed) - 1; i >= 0; i-- {
		nodeID := completed[i]
		node, ok := g.Node(nodeID)
		if !ok || node.Compensate == nil {
			continue
		}

		output, _ := ec.Result(nodeID)

		start := time.Now()
		err := node.Compensate(ctx, output)
		report.Compensated = append(report.Compensated, nodeID)

		if s.metrics != nil {
			s.metrics.RecordCompensation(g.Name, err != nil)
		}

		if err != nil {
			report.Failures = append(report.Failures, domain.CompensationEntry{
				NodeID: nodeID,
				Err:    err,
				Error:  err.Error(),
			})
			s.logger.Error("compensation action failed",
				zap.String("run_id", ec.RunID()),
				zap.String("node_id", nodeID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			continue
		}

		s.logger.Info("node compensated",
			zap.String("run_id", ec.RunID()),
			zap.String("node_id", nodeID),
			zap.Duration("duration", time.Since(start)))
	}

	ec.SetStatus(domain.ExecutionStatusCompensated)

	s.logger.Warn("run compensated",
		zap.String("run_id", ec.RunID()),
		zap.String("graph", g.Name),
		zap.Int("compensated", len(report.Compensated)),
		zap.Int("failures", len(report.Failures)),
		zap.String("trigger", trigger.Error()))

	return report
}
