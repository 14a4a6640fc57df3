package session

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	model "github.com/zhouzirui/improv-battle/backend/internal/model/transcript"
	"github.com/zhouzirui/improv-battle/backend/internal/service/transcript"
	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

var ErrSessionClosed = errors.New("session closed")

// Session is the connected context: the connection parameters, the transport
// subscription, the latest agent activity signal and the transcript. It lives
// from a successful issuance until Close and, like the transcript, is driven by
// a single event loop.
type Session struct {
	details    connection.Details
	transcript *transcript.Aggregator
	source     transport.Source
	signal     transport.AgentState
	closed     bool
}

func newSession(details connection.Details, agg *transcript.Aggregator) *Session {
	return &Session{details: details, transcript: agg}
}

func (s *Session) Details() connection.Details { return s.details }

// Attach binds the transport subscription. A closed session refuses it and
// closes the source so nothing leaks.
func (s *Session) Attach(src transport.Source) error {
	if s.closed {
		_ = src.Close()
		return ErrSessionClosed
	}
	if s.source != nil {
		_ = s.source.Close()
	}
	s.source = src
	return nil
}

// Events returns the attached subscription, or nil before Attach.
func (s *Session) Events() <-chan transport.Event {
	if s.source == nil || s.closed {
		return nil
	}
	return s.source.Events()
}

// Handle applies one transport event. It reports whether anything visible changed.
func (s *Session) Handle(ev transport.Event) bool {
	if s.closed {
		return false
	}

	switch ev.Type {
	case transport.EventAgentState:
		if s.signal == ev.State {
			return false
		}
		s.signal = ev.State
		return true

	case transport.EventAgentTranscription:
		changed := false
		for _, seg := range ev.FinalSegments() {
			if _, ok := s.transcript.OnHostUtteranceFinal(seg.Text); ok {
				changed = true
			}
		}
		return changed

	case transport.EventTranscription:
		// Speech from the host's own identity is already on the agent path.
		if ev.Participant == nil || ev.FromAgent() {
			return false
		}
		changed := false
		for _, seg := range ev.FinalSegments() {
			if _, ok := s.transcript.OnParticipantUtteranceFinal(seg.Text); ok {
				changed = true
			}
		}
		return changed

	default:
		log.Debug().Str("component", "session").Str("type", string(ev.Type)).Msg("ignoring event")
		return false
	}
}

func (s *Session) Signal() transport.AgentState { return s.signal }

// State derives the presented state from the latest signal.
func (s *Session) State() State {
	if s.closed {
		return StateConnecting
	}
	return Derive(s.signal)
}

func (s *Session) Transcript() []model.Entry { return s.transcript.Entries() }

func (s *Session) TranscriptLen() int { return s.transcript.Len() }

func (s *Session) Closed() bool { return s.closed }

// Close unsubscribes from the transport and discards transcript and parameters.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.transcript.Reset()
	s.details = connection.Details{}
	s.signal = ""

	if s.source == nil {
		return nil
	}
	err := s.source.Close()
	s.source = nil
	return errors.Wrap(err, "close transport")
}
