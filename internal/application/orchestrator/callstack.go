package orchestrator

import (
	"context"

	"github.com/floworc/floworc/internal/domain"
)

// callStackKey is a private context key type so values set here cannot
// collide with other packages.
type callStackKey struct{}

// callStack travels on the context through nested graph invocations. It
// carries the frames of every in-progress run on the current chain plus the
// limits the chain was started with, so a nested run inherits them instead of
// re-reading possibly different defaults.
type callStack struct {
	frames      []domain.Frame
	maxDepth    int
	repeatLimit int
}

// withCallStack returns a context carrying the given call stack.
func withCallStack(ctx context.Context, cs callStack) context.Context {
	return context.WithValue(ctx, callStackKey{}, cs)
}

// callStackFrom extracts the call stack of the invocation chain, if any.
func callStackFrom(ctx context.Context) (callStack, bool) {
	cs, ok := ctx.Value(callStackKey{}).(callStack)
	return cs, ok
}

// repeats counts how many frames reference the given graph name.
func (cs callStack) repeats(graphName string) int {
	n := 0
	for _, f := range cs.frames {
		if f.GraphName == graphName {
			n++
		}
	}
	return n
}
