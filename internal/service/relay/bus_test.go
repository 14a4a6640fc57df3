package relay

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

func receive(t *testing.T, ch <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return transport.Event{}
	}
}

func TestMemoryBusFansOutInOrder(t *testing.T) {
	bus := NewMemoryBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, "improv_battle_a")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "improv_battle_a")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "improv_battle_a", transport.Event{Type: transport.EventAgentState, State: transport.AgentStateSpeaking}))
	require.NoError(t, bus.Publish(ctx, "improv_battle_a", transport.Event{Type: transport.EventAgentState, State: transport.AgentStateListening}))

	for _, sub := range []<-chan transport.Event{first, second} {
		assert.Equal(t, transport.AgentStateSpeaking, receive(t, sub).State)
		assert.Equal(t, transport.AgentStateListening, receive(t, sub).State)
	}
}

func TestMemoryBusIsolatesRooms(t *testing.T) {
	bus := NewMemoryBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "improv_battle_a")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "improv_battle_b", transport.Event{Type: transport.EventAgentState, State: transport.AgentStateSpeaking}))
	require.NoError(t, bus.Publish(ctx, "improv_battle_a", transport.Event{Type: transport.EventAgentState, State: transport.AgentStateThinking}))

	assert.Equal(t, transport.AgentStateThinking, receive(t, sub).State)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewMemoryBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "improv_battle_a")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
}
