package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/floworc/floworc/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var got []string
	err := bus.Subscribe(context.Background(), ports.TopicRunEvents, func(ctx context.Context, event ports.Event) error {
		got = append(got, event.ID)
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, bus.Publish(context.Background(), ports.TopicRunEvents, ports.Event{ID: id}))
	}

	assert.Equal(t, []string{"e1", "e2", "e3"}, got)
}

func TestEventBusTopicIsolation(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var got []string
	require.NoError(t, bus.Subscribe(context.Background(), ports.TopicNodeEvents, func(ctx context.Context, event ports.Event) error {
		got = append(got, event.ID)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), ports.TopicRunEvents, ports.Event{ID: "run"}))
	require.NoError(t, bus.Publish(context.Background(), ports.TopicNodeEvents, ports.Event{ID: "node"}))

	assert.Equal(t, []string{"node"}, got)
}

func TestEventBusHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var second bool
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(ctx context.Context, event ports.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(ctx context.Context, event ports.Event) error {
		second = true
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "t", ports.Event{ID: "e"}))
	assert.True(t, second)
}

func TestEventBusClosedDropsEvents(t *testing.T) {
	bus := NewEventBus()

	var got int
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(ctx context.Context, event ports.Event) error {
		got++
		return nil
	}))

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(context.Background(), "t", ports.Event{ID: "e"}))
	assert.Zero(t, got)
}
