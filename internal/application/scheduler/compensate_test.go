package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/floworc/floworc/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compensationLog collects compensation invocations in order.
type compensationLog struct {
	mu      sync.Mutex
	visited []string
	outputs map[string]interface{}
}

func newCompensationLog() *compensationLog {
	return &compensationLog{outputs: make(map[string]interface{})}
}

func (l *compensationLog) action(nodeID string, fail error) domain.CompensationAction {
	return func(ctx context.Context, output interface{}) error {
		l.mu.Lock()
		l.visited = append(l.visited, nodeID)
		l.outputs[nodeID] = output
		l.mu.Unlock()
		return fail
	}
}

func TestCompensateReverseCompletionOrder(t *testing.T) {
	log := newCompensationLog()

	g := domain.NewGraph("saga").
		AddNode(&domain.Node{
			ID: "reserve",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "reservation-1", nil
			},
			Compensate: log.action("reserve", nil),
		}).
		AddNode(&domain.Node{
			ID:        "charge",
			DependsOn: []string{"reserve"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "charge-1", nil
			},
			Compensate: log.action("charge", nil),
		}).
		AddNode(&domain.Node{
			ID:        "ship",
			DependsOn: []string{"charge"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("no trucks")
			},
		})

	s := newTestScheduler()
	ec := newTestContext("saga")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	// Rollback visits completed nodes newest first, with recorded outputs.
	assert.Equal(t, []string{"charge", "reserve"}, log.visited)
	assert.Equal(t, "charge-1", log.outputs["charge"])
	assert.Equal(t, "reservation-1", log.outputs["reserve"])

	assert.Equal(t, domain.ExecutionStatusCompensated, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, []string{"charge", "reserve"}, result.Report.Compensated)
	assert.Empty(t, result.Report.Failures)
}

func TestCompensateCollectsFailuresAndContinues(t *testing.T) {
	log := newCompensationLog()
	refundErr := errors.New("refund rejected")

	g := domain.NewGraph("saga").
		AddNode(&domain.Node{
			ID: "reserve",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "r", nil
			},
			Compensate: log.action("reserve", nil),
		}).
		AddNode(&domain.Node{
			ID:        "charge",
			DependsOn: []string{"reserve"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "c", nil
			},
			Compensate: log.action("charge", refundErr),
		}).
		AddNode(&domain.Node{
			ID:        "ship",
			DependsOn: []string{"charge"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("boom")
			},
		})

	s := newTestScheduler()
	ec := newTestContext("saga")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	// The failed charge compensation does not stop the reserve rollback.
	assert.Equal(t, []string{"charge", "reserve"}, log.visited)

	require.NotNil(t, result.Report)
	assert.Equal(t, []string{"charge", "reserve"}, result.Report.Compensated)
	require.Len(t, result.Report.Failures, 1)
	assert.Equal(t, "charge", result.Report.Failures[0].NodeID)
	assert.Equal(t, refundErr.Error(), result.Report.Failures[0].Error)

	// Compensated even with partial rollback; the report carries the rest.
	assert.Equal(t, domain.ExecutionStatusCompensated, result.Status)
}

func TestCompensateSkipsNodesWithoutAction(t *testing.T) {
	log := newCompensationLog()

	g := domain.NewGraph("saga").
		AddNode(&domain.Node{
			ID: "plain",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "p", nil
			},
		}).
		AddNode(&domain.Node{
			ID:        "undoable",
			DependsOn: []string{"plain"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "u", nil
			},
			Compensate: log.action("undoable", nil),
		}).
		AddNode(&domain.Node{
			ID:        "fails",
			DependsOn: []string{"undoable"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("boom")
			},
		})

	s := newTestScheduler()
	ec := newTestContext("saga")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	assert.Equal(t, []string{"undoable"}, log.visited)
	assert.Equal(t, []string{"undoable"}, result.Report.Compensated)
}

func TestCompensateFailedNodeNotCompensated(t *testing.T) {
	log := newCompensationLog()

	g := domain.NewGraph("saga").
		AddNode(&domain.Node{
			ID: "breaks",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("boom")
			},
			Compensate: log.action("breaks", nil),
		})

	s := newTestScheduler()
	ec := newTestContext("saga")

	_, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	// Only completed nodes are rolled back; the failing node never is.
	assert.Empty(t, log.visited)
}
