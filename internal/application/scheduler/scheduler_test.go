package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"github.com/floworc/floworc/internal/ports"
	eventsmem "github.com/floworc/floworc/pkg/adapters/events/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(nil, nil, zap.NewNop())
}

func newTestContext(graphName string) *ExecutionContext {
	return NewExecutionContext("run-1", graphName, map[string]interface{}{}, []domain.Frame{
		{GraphName: graphName, RunID: "run-1"},
	})
}

// waveRecorder tracks the order nodes started in, grouped into waves by the
// caller's graph shape.
type waveRecorder struct {
	mu    sync.Mutex
	order []string
}

func (w *waveRecorder) record(id string) {
	w.mu.Lock()
	w.order = append(w.order, id)
	w.mu.Unlock()
}

func (w *waveRecorder) started() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

func recordingNode(id string, rec *waveRecorder, deps ...string) *domain.Node {
	return &domain.Node{
		ID:        id,
		DependsOn: deps,
		Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
			rec.record(id)
			return id + "-output", nil
		},
	}
}

func TestExecuteDiamondWaveOrder(t *testing.T) {
	rec := &waveRecorder{}
	g := domain.NewGraph("diamond").
		AddNode(recordingNode("a", rec)).
		AddNode(recordingNode("b", rec, "a")).
		AddNode(recordingNode("c", rec, "a", "b"))
	g.DeclareOutput(domain.OutputSpec{Name: "final", FromNode: "c"})

	s := newTestScheduler()
	ec := newTestContext("diamond")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, []string{"a", "b", "c"}, rec.started())
	assert.Equal(t, []string{"a", "b", "c"}, ec.Completed())
	assert.Equal(t, "c-output", result.Outputs["final"])
	assert.Empty(t, result.Pending)
}

func TestExecuteDependencyOutputsVisible(t *testing.T) {
	var got domain.NodeInput
	g := domain.NewGraph("deps").
		AddNode(&domain.Node{
			ID: "producer",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return 42, nil
			},
		}).
		AddNode(&domain.Node{
			ID:        "consumer",
			DependsOn: []string{"producer"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				got = input
				out, ok := view.Result("producer")
				require.True(t, ok)
				return out, nil
			},
		})

	s := newTestScheduler()
	ec := NewExecutionContext("run-1", "deps", map[string]interface{}{"flag": true}, nil)

	_, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, true, got.Run["flag"])
	assert.Equal(t, 42, got.Deps["producer"])
}

func TestExecuteSiblingResultsKeptOnFailure(t *testing.T) {
	boom := errors.New("boom")
	g := domain.NewGraph("partial").
		AddNode(&domain.Node{
			ID: "ok",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "kept", nil
			},
		}).
		AddNode(&domain.Node{
			ID: "bad",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, boom
			},
		}).
		AddNode(&domain.Node{
			ID:        "downstream",
			DependsOn: []string{"bad"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				t.Fatal("downstream must not run")
				return nil, nil
			},
		})

	s := newTestScheduler()
	ec := newTestContext("partial")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	var nodeErr *domain.NodeFailedError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "bad", nodeErr.NodeID)
	assert.ErrorIs(t, err, boom)

	// The sibling's completed result survives the failure.
	require.Contains(t, result.NodeResults, "ok")
	assert.Equal(t, "kept", result.NodeResults["ok"].Output)
	assert.Equal(t, "bad", result.FailedNode)
	assert.Equal(t, []string{"downstream"}, result.Pending)
}

func TestExecuteFirstFailureInInsertionOrder(t *testing.T) {
	g := domain.NewGraph("twofail").
		AddNode(&domain.Node{
			ID: "first",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("first failed")
			},
		}).
		AddNode(&domain.Node{
			ID: "second",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("second failed")
			},
		})

	s := newTestScheduler()
	ec := newTestContext("twofail")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	// Both fail in the same wave; the reported failure follows insertion
	// order regardless of finish order.
	assert.Equal(t, "first", result.FailedNode)
	var nodeErr *domain.NodeFailedError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "first", nodeErr.NodeID)
}

func TestExecuteEmptyGraphCompletes(t *testing.T) {
	g := domain.NewGraph("empty")

	s := newTestScheduler()
	ec := newTestContext("empty")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Empty(t, result.NodeResults)
}

func TestExecuteEmptyGraphDerivesOutputFromRunInput(t *testing.T) {
	g := domain.NewGraph("passthrough")
	g.DeclareOutput(domain.OutputSpec{
		Name: "echo",
		Combine: func(view domain.ContextView) (interface{}, error) {
			return view.Input()["x"], nil
		},
	})

	s := newTestScheduler()
	ec := NewExecutionContext("run-1", "passthrough", map[string]interface{}{"x": 7}, nil)

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 7, result.Outputs["echo"])
}

func TestExecuteFailedStatusPrecedesCompensation(t *testing.T) {
	bus := eventsmem.NewEventBus()
	s := NewScheduler(bus, nil, zap.NewNop())
	ec := newTestContext("lifecycle")

	// The in-memory bus delivers on the publisher's goroutine, so each
	// handler sees the run status at the moment the event was published.
	var observed []domain.ExecutionStatus
	err := bus.Subscribe(context.Background(), ports.TopicRunEvents, func(ctx context.Context, event ports.Event) error {
		observed = append(observed, ec.Status())
		return nil
	})
	require.NoError(t, err)

	g := domain.NewGraph("lifecycle").
		AddNode(&domain.Node{
			ID: "done",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "ok", nil
			},
			Compensate: func(ctx context.Context, output interface{}) error { return nil },
		}).
		AddNode(&domain.Node{
			ID:        "bad",
			DependsOn: []string{"done"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return nil, errors.New("boom")
			},
		})

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.ExecutionStatusCompensated, result.Status)

	// Run-failed fires before the sweep, run-compensated after it.
	require.Len(t, observed, 2)
	assert.Equal(t, domain.ExecutionStatusFailed, observed[0])
	assert.Equal(t, domain.ExecutionStatusCompensated, observed[1])
}

func TestExecuteConcurrencyLimitKeepsDispatchOrder(t *testing.T) {
	rec := &waveRecorder{}
	g := domain.NewGraph("limited")
	for _, id := range []string{"n1", "n2", "n3", "n4"} {
		g.AddNode(recordingNode(id, rec))
	}

	s := newTestScheduler()
	ec := newTestContext("limited")

	_, err := s.Execute(context.Background(), g, ec, domain.RunOptions{ConcurrencyLimit: 1})
	require.NoError(t, err)

	// With a limit of one the wave serializes in insertion order.
	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, rec.started())
}

func TestExecuteOutputCombine(t *testing.T) {
	g := domain.NewGraph("combine").
		AddNode(&domain.Node{
			ID: "x",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return 2, nil
			},
		}).
		AddNode(&domain.Node{
			ID: "y",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return 3, nil
			},
		})
	g.DeclareOutput(domain.OutputSpec{
		Name: "sum",
		Combine: func(view domain.ContextView) (interface{}, error) {
			x, _ := view.Result("x")
			y, _ := view.Result("y")
			return x.(int) + y.(int), nil
		},
	})

	s := newTestScheduler()
	ec := newTestContext("combine")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Outputs["sum"])
}

func TestExecuteOutputDefault(t *testing.T) {
	g := domain.NewGraph("defaulted").
		AddNode(&domain.Node{
			ID: "only",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "v", nil
			},
		})
	// References a node the graph does not have a result for; the declared
	// default applies. Validation would reject a dangling reference, but the
	// scheduler itself only sees the recorded results.
	g.DeclareOutput(domain.OutputSpec{Name: "opt", FromNode: "only", HasDefault: false})
	g.DeclareOutput(domain.OutputSpec{Name: "fallback", FromNode: "missing", Default: "dflt", HasDefault: true})

	s := newTestScheduler()
	ec := newTestContext("defaulted")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v", result.Outputs["opt"])
	assert.Equal(t, "dflt", result.Outputs["fallback"])
}

func TestExecuteOutputUnavailableTriggersCompensation(t *testing.T) {
	var compensated []string
	var mu sync.Mutex

	g := domain.NewGraph("unavailable").
		AddNode(&domain.Node{
			ID: "only",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "v", nil
			},
			Compensate: func(ctx context.Context, output interface{}) error {
				mu.Lock()
				compensated = append(compensated, fmt.Sprintf("only=%v", output))
				mu.Unlock()
				return nil
			},
		})
	g.DeclareOutput(domain.OutputSpec{Name: "gone", FromNode: "missing"})

	s := newTestScheduler()
	ec := newTestContext("unavailable")

	result, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.Error(t, err)

	var outErr *domain.OutputUnavailableError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, "gone", outErr.Output)

	// Output derivation failure compensates like any other run failure.
	assert.Equal(t, domain.ExecutionStatusCompensated, result.Status)
	assert.Equal(t, []string{"only=v"}, compensated)
}

func TestExecuteCancellation(t *testing.T) {
	started := make(chan struct{})
	var compensated []string
	var mu sync.Mutex

	g := domain.NewGraph("cancellable").
		AddNode(&domain.Node{
			ID: "fast",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				return "done", nil
			},
			Compensate: func(ctx context.Context, output interface{}) error {
				mu.Lock()
				compensated = append(compensated, "fast")
				mu.Unlock()
				return nil
			},
		}).
		AddNode(&domain.Node{
			ID:        "slow",
			DependsOn: []string{"fast"},
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	s := newTestScheduler()
	ec := newTestContext("cancellable")

	result, err := s.Execute(ctx, g, ec, domain.RunOptions{})
	require.Error(t, err)

	// Cancellation takes precedence over the aborted node's own error.
	assert.ErrorIs(t, err, domain.ErrRunCancelled)
	assert.Equal(t, domain.ExecutionStatusCompensated, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, domain.ErrRunCancelled.Error(), result.Report.TriggeredBy)
	assert.Equal(t, []string{"fast"}, compensated)
}

func TestExecuteCancelledBeforeNewWave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := domain.NewGraph("precancelled").
		AddNode(&domain.Node{
			ID: "never",
			Execute: func(c context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				t.Fatal("node must not be dispatched after cancellation")
				return nil, nil
			},
		})

	s := newTestScheduler()
	ec := newTestContext("precancelled")

	result, err := s.Execute(ctx, g, ec, domain.RunOptions{})
	require.ErrorIs(t, err, domain.ErrRunCancelled)
	assert.Equal(t, []string{"never"}, result.Pending)
}

func TestContextResultWriteOnce(t *testing.T) {
	ec := newTestContext("g")

	ec.Record(&domain.NodeResult{NodeID: "n", Status: domain.ExecutionStatusCompleted, Output: "first"})
	ec.Record(&domain.NodeResult{NodeID: "n", Status: domain.ExecutionStatusCompleted, Output: "second"})

	out, ok := ec.Result("n")
	require.True(t, ok)
	assert.Equal(t, "first", out)
	assert.Equal(t, []string{"n"}, ec.Completed())
}

func TestContextFailedResultInvisible(t *testing.T) {
	ec := newTestContext("g")

	ec.Record(&domain.NodeResult{NodeID: "n", Status: domain.ExecutionStatusFailed, Error: "boom"})

	_, ok := ec.Result("n")
	assert.False(t, ok)
	assert.Empty(t, ec.Completed())

	rec, ok := ec.NodeRecord("n")
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionStatusFailed, rec.Status)
}

func TestExecuteRunsWavesConcurrently(t *testing.T) {
	// Two root nodes rendezvous over an unbuffered channel; the exchange only
	// succeeds when they really run in parallel.
	ch := make(chan struct{})
	g := domain.NewGraph("parallel").
		AddNode(&domain.Node{
			ID: "left",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				select {
				case ch <- struct{}{}:
					return "met", nil
				case <-time.After(2 * time.Second):
					return nil, errors.New("peer never arrived")
				}
			},
		}).
		AddNode(&domain.Node{
			ID: "right",
			Execute: func(ctx context.Context, input domain.NodeInput, view domain.ContextView) (interface{}, error) {
				select {
				case <-ch:
					return "met", nil
				case <-time.After(2 * time.Second):
					return nil, errors.New("peer never arrived")
				}
			},
		})

	s := newTestScheduler()
	ec := newTestContext("parallel")

	_, err := s.Execute(context.Background(), g, ec, domain.RunOptions{})
	require.NoError(t, err)
}
