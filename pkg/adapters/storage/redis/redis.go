package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunArchive implements ports.RunArchive on Redis. Each run result is one
// JSON value under its own key, expiring after the configured TTL.
type RunArchive struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunArchive creates a new Redis run archive. A zero TTL keeps results
// until deleted.
func NewRunArchive(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunArchive {
	return &RunArchive{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists a finished run's result
func (a *RunArchive) Save(ctx context.Context, result *domain.RunResult) error {
	key := getRunKey(result.RunID)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	if err := a.client.Set(ctx, key, data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run result: %w", err)
	}

	a.logger.Debug("run archived",
		zap.String("run_id", result.RunID),
		zap.String("graph", result.GraphName),
		zap.String("status", string(result.Status)))

	return nil
}

// Get retrieves an archived run result
func (a *RunArchive) Get(ctx context.Context, runID string) (*domain.RunResult, error) {
	key := getRunKey(runID)

	data, err := a.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run result: %w", err)
	}

	var result domain.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run result: %w", err)
	}

	return &result, nil
}

// List returns the ids of all archived runs
func (a *RunArchive) List(ctx context.Context) ([]string, error) {
	pattern := runKeyPrefix + "*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = a.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	runIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(runKeyPrefix) {
			runIDs = append(runIDs, key[len(runKeyPrefix):])
		}
	}

	return runIDs, nil
}

// Delete removes an archived run result
func (a *RunArchive) Delete(ctx context.Context, runID string) error {
	key := getRunKey(runID)

	if err := a.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete run result: %w", err)
	}

	a.logger.Debug("archived run deleted",
		zap.String("run_id", runID))

	return nil
}

const runKeyPrefix = "floworc:run:"

// getRunKey returns the Redis key for a run result
func getRunKey(runID string) string {
	return runKeyPrefix + runID
}
