// Package transport describes the realtime room events the game consumes and
// the websocket connection that carries them from the relay.
package transport

import (
	"strings"

	"github.com/pkg/errors"
)

// AgentState is the AI host's activity signal as reported by the room.
type AgentState string

const (
	AgentStateDisconnected AgentState = "disconnected"
	AgentStateConnecting   AgentState = "connecting"
	AgentStateInitializing AgentState = "initializing"
	AgentStateIdle         AgentState = "idle"
	AgentStateListening    AgentState = "listening"
	AgentStateThinking     AgentState = "thinking"
	AgentStateSpeaking     AgentState = "speaking"
)

// EventType discriminates the JSON frames exchanged with the relay.
type EventType string

const (
	EventAgentState         EventType = "agent_state"
	EventAgentTranscription EventType = "agent_transcription"
	EventTranscription      EventType = "transcription"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Participant is the speaker attribution attached to transcription events.
type Participant struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	IsAgent  bool   `json:"isAgent"`
}

// Segment is a piece of speech-to-text output. Only final segments are stable.
type Segment struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Event is a single frame on the room event stream.
type Event struct {
	Type        EventType    `json:"type"`
	Room        string       `json:"room,omitempty"`
	State       AgentState   `json:"state,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	Segments    []Segment    `json:"segments,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
}

// Validate checks that the event carries the fields its type requires.
func (e Event) Validate() error {
	switch e.Type {
	case EventAgentState:
		if strings.TrimSpace(string(e.State)) == "" {
			return errors.New("agent_state event without state")
		}
	case EventAgentTranscription, EventTranscription:
		if len(e.Segments) == 0 {
			return errors.Errorf("%s event without segments", e.Type)
		}
	default:
		return errors.Wrapf(ErrUnknownEvent, "%q", e.Type)
	}
	return nil
}

// FinalSegments returns the segments that are no longer subject to revision,
// in delivery order.
func (e Event) FinalSegments() []Segment {
	var out []Segment
	for _, seg := range e.Segments {
		if seg.Final {
			out = append(out, seg)
		}
	}
	return out
}

// FromAgent reports whether the event is attributed to an AI agent participant.
func (e Event) FromAgent() bool {
	return e.Participant != nil && e.Participant.IsAgent
}
