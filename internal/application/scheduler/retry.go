package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"go.uber.org/zap"
)

// backoffDelay computes the wait before the retry following the given
// attempt (1-based): base * 2^(attempt-1). Jitterless so tests can assert
// the exact schedule.
func backoffDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// runWithResilience executes a single node through its retry policy. Each
// attempt races the executor against the policy timeout; a timeout cancels
// the in-flight attempt and counts as a failed attempt. Nodes whose policy
// declares no timeout fall back to the run's default node timeout. After
// exhausting attempts the last error is surfaced as a NodeFailedError. The
// returned attempt count never exceeds the policy maximum.
func (s *Scheduler) runWithResilience(ctx context.Context, node *domain.Node, input domain.NodeInput, ec *ExecutionContext, defaultTimeout time.Duration) (interface{}, int, error) {
	policy := node.Policy.Normalize()
	if policy.Timeout <= 0 {
		policy.Timeout = defaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		output, err := runAttempt(ctx, node, input, ec, policy.Timeout)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err

		s.logger.Warn("node attempt failed",
			zap.String("run_id", ec.RunID()),
			zap.String("node_id", node.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Error(err))

		if attempt == policy.MaxAttempts {
			break
		}

		// The run was cancelled or timed out as a whole; stop retrying.
		if ctx.Err() != nil {
			return nil, attempt, fmt.Errorf("node %s aborted: %w", node.ID, ctx.Err())
		}

		s.notifyRetry(ctx, ec, node.ID, attempt)

		select {
		case <-time.After(backoffDelay(policy, attempt)):
		case <-ctx.Done():
			return nil, attempt, fmt.Errorf("node %s aborted during backoff: %w", node.ID, ctx.Err())
		}
	}

	return nil, policy.MaxAttempts, &domain.NodeFailedError{
		NodeID:   node.ID,
		Attempts: policy.MaxAttempts,
		Err:      lastErr,
	}
}

// runAttempt runs the executor once, bounded by the attempt timeout.
func runAttempt(ctx context.Context, node *domain.Node, input domain.NodeInput, view domain.ContextView, timeout time.Duration) (interface{}, error) {
	attemptCtx := ctx
	if timeout > 0 {
		// Run cancellation does not abort an attempt that already started;
		// the attempt finishes on its own or hits its policy timeout.
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
	}

	type outcome struct {
		output interface{}
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		output, err := node.Execute(attemptCtx, input, view)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("node %s attempt: %w", node.ID, attemptCtx.Err())
	}
}
