package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/floworc/floworc/internal/domain"
)

// RunArchive implements ports.RunArchive with an in-memory map. Results are
// stored by value so later mutation of the caller's struct does not leak
// into the archive.
type RunArchive struct {
	mu   sync.RWMutex
	runs map[string]domain.RunResult
}

// NewRunArchive creates a new in-memory run archive
func NewRunArchive() *RunArchive {
	return &RunArchive{
		runs: make(map[string]domain.RunResult),
	}
}

// Save persists a finished run's result
func (a *RunArchive) Save(ctx context.Context, result *domain.RunResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.runs[result.RunID] = *result
	return nil
}

// Get retrieves an archived run result
func (a *RunArchive) Get(ctx context.Context, runID string) (*domain.RunResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result, ok := a.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	return &result, nil
}

// List returns the ids of all archived runs
func (a *RunArchive) List(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	runIDs := make([]string, 0, len(a.runs))
	for id := range a.runs {
		runIDs = append(runIDs, id)
	}

	return runIDs, nil
}

// Delete removes an archived run result
func (a *RunArchive) Delete(ctx context.Context, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.runs, runID)
	return nil
}
