package memory

import (
	"context"
	"testing"

	"github.com/floworc/floworc/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArchiveSaveAndGet(t *testing.T) {
	a := NewRunArchive()

	result := &domain.RunResult{
		RunID:     "r1",
		GraphName: "g",
		Status:    domain.ExecutionStatusCompleted,
		Outputs:   map[string]interface{}{"out": 1},
	}
	require.NoError(t, a.Save(context.Background(), result))

	got, err := a.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "g", got.GraphName)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)

	// The archived copy is detached from the caller's struct.
	result.Status = domain.ExecutionStatusFailed
	got, err = a.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)
}

func TestRunArchiveGetUnknown(t *testing.T) {
	_, err := NewRunArchive().Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRunArchiveListAndDelete(t *testing.T) {
	a := NewRunArchive()

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, a.Save(context.Background(), &domain.RunResult{RunID: id}))
	}

	ids, err := a.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, ids)

	require.NoError(t, a.Delete(context.Background(), "r1"))

	ids, err = a.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids)
}
