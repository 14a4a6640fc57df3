package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

func TestDerive(t *testing.T) {
	cases := map[transport.AgentState]State{
		"":                               StateConnecting,
		transport.AgentStateDisconnected: StateConnecting,
		transport.AgentStateConnecting:   StateConnecting,
		transport.AgentStateIdle:         StateConnecting,
		transport.AgentStateInitializing: StateReady,
		transport.AgentStateThinking:     StateReady,
		transport.AgentStateListening:    StateParticipantTurn,
		transport.AgentStateSpeaking:     StateHostSpeaking,
		"something-new":                  StateReady,
	}
	for signal, want := range cases {
		assert.Equal(t, want, Derive(signal), "signal %q", signal)
	}
}

func TestPresent(t *testing.T) {
	assert.Equal(t, Presentation{Title: "Host Speaking", Hint: "Listen to the host"}, Present(StateHostSpeaking))
	assert.Equal(t, Presentation{Title: "Your Turn", Hint: "Perform your improv"}, Present(StateParticipantTurn))
	assert.Equal(t, Presentation{Title: "Ready", Hint: "Waiting for next cue"}, Present(StateReady))
	assert.Equal(t, Presentation{Title: "Connecting...", Hint: "Connecting to session"}, Present(StateConnecting))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "participant-speaking", StateParticipantTurn.String())
	assert.Equal(t, "host-speaking", StateHostSpeaking.String())
	assert.Equal(t, "connecting", State(99).String())
}
