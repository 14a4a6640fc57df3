package session

import "github.com/zhouzirui/improv-battle/backend/internal/transport"

// State is the session status shown to the player. It is always derived from
// the latest agent activity signal and never stored on its own.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateHostSpeaking
	StateParticipantTurn
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateHostSpeaking:
		return "host-speaking"
	case StateParticipantTurn:
		return "participant-speaking"
	default:
		return "connecting"
	}
}

// Derive maps the agent activity signal to a State. No debounce: every new
// signal yields its state immediately.
func Derive(signal transport.AgentState) State {
	switch signal {
	case transport.AgentStateSpeaking:
		return StateHostSpeaking
	case transport.AgentStateListening:
		return StateParticipantTurn
	case "", transport.AgentStateDisconnected, transport.AgentStateConnecting, transport.AgentStateIdle:
		return StateConnecting
	default:
		return StateReady
	}
}

// Presentation is the headline and hint rendered for a State.
type Presentation struct {
	Title string
	Hint  string
}

// Present returns the text for a State.
func Present(s State) Presentation {
	switch s {
	case StateHostSpeaking:
		return Presentation{Title: "Host Speaking", Hint: "Listen to the host"}
	case StateParticipantTurn:
		return Presentation{Title: "Your Turn", Hint: "Perform your improv"}
	case StateReady:
		return Presentation{Title: "Ready", Hint: "Waiting for next cue"}
	default:
		return Presentation{Title: "Connecting...", Hint: "Connecting to session"}
	}
}
