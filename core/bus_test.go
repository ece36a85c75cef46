package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DrainReturnsAndClearsQueue(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(NewGameEvent("inst-1", "talk", "agent-1", []string{"npc-1"}, nil))
	bus.Publish(NewGameEvent("inst-1", "buy", "agent-1", nil, nil))
	bus.Publish(NewGameEvent("inst-2", "talk", "agent-2", nil, nil))

	drained := bus.Drain("inst-1")
	require.Len(t, drained, 2)
	assert.Equal(t, EventKind("talk"), drained[0].Kind)
	assert.Equal(t, EventKind("buy"), drained[1].Kind)

	// inst-1 is now empty, inst-2 untouched.
	assert.Empty(t, bus.Drain("inst-1"))
	assert.Equal(t, 1, bus.Pending("inst-2"))
}

func TestEventBus_PublishDuringDrainLandsInNextDrain(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(NewGameEvent("inst-1", "talk", "agent-1", nil, nil))

	// Drain atomically swaps the queue out; anything published while the
	// drained batch is still being processed belongs to the next cycle.
	batch := bus.Drain("inst-1")
	require.Len(t, batch, 1)

	bus.Publish(NewGameEvent("inst-1", "steal", "agent-1", nil, nil))
	assert.Len(t, batch, 1, "already drained batch must not grow")

	next := bus.Drain("inst-1")
	require.Len(t, next, 1)
	assert.Equal(t, EventKind("steal"), next[0].Kind)
}

func TestEventBus_PendingByInstance(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(NewGameEvent("a", "talk", "", nil, nil))
	bus.Publish(NewGameEvent("a", "talk", "", nil, nil))
	bus.Publish(NewGameEvent("b", "talk", "", nil, nil))

	counts := bus.PendingByInstance()
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 1, counts["b"])

	bus.Clear("a")
	assert.Zero(t, bus.Pending("a"))
}

func TestNewGameEvent_StampsIdentityAndTime(t *testing.T) {
	ev := NewGameEvent("inst-1", KindSystemNotice, "agent-1", []string{"n1"}, map[string]any{"k": "v"})
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, "inst-1", ev.InstanceID)
	assert.Equal(t, "v", ev.Data["k"])

	// nil data is normalized so consumers never nil-check.
	ev2 := NewGameEvent("inst-1", KindSystemNotice, "", nil, nil)
	assert.NotNil(t, ev2.Data)
}
