package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	model "github.com/zhouzirui/improv-battle/backend/internal/model/transcript"
	"github.com/zhouzirui/improv-battle/backend/internal/service/session"
	"github.com/zhouzirui/improv-battle/backend/internal/service/transcript"
	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

type fakeClient struct {
	names   []string
	details connection.Details
	err     error
}

func (f *fakeClient) ConnectionDetails(_ context.Context, name string) (connection.Details, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return connection.Details{}, f.err
	}
	d := f.details
	d.ParticipantName = name
	return d, nil
}

type fakeSource struct {
	ch     chan transport.Event
	closed int
}

func newFakeSource() *fakeSource { return &fakeSource{ch: make(chan transport.Event, 8)} }

func (f *fakeSource) Events() <-chan transport.Event { return f.ch }

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

func validDetails() connection.Details {
	return connection.Details{
		ServerURL:        "ws://localhost:7880",
		RoomName:         "improv_battle_abc123",
		ParticipantToken: "token",
		ParticipantName:  "Ada",
	}
}

func connected(t *testing.T) (*session.Bootstrap, *session.Session) {
	t.Helper()
	b := session.NewBootstrap()
	require.NoError(t, b.Submit(context.Background(), &fakeClient{details: validDetails()}, "Ada"))
	require.NotNil(t, b.Session())
	return b, b.Session()
}

func hostSaid(texts ...string) transport.Event {
	ev := transport.Event{Type: transport.EventAgentTranscription}
	for _, text := range texts {
		ev.Segments = append(ev.Segments, transport.Segment{Text: text, Final: true})
	}
	return ev
}

func participantSaid(p *transport.Participant, segs ...transport.Segment) transport.Event {
	return transport.Event{Type: transport.EventTranscription, Participant: p, Segments: segs}
}

func TestBootstrapStartsUnauthenticated(t *testing.T) {
	b := session.NewBootstrap()
	assert.Equal(t, session.PhaseUnauthenticated, b.Phase())
	assert.Equal(t, session.ViewWelcome, b.View())
	assert.Nil(t, b.Session())
}

func TestBootstrapRejectsBlankName(t *testing.T) {
	b := session.NewBootstrap()
	client := &fakeClient{details: validDetails()}

	err := b.Submit(context.Background(), client, "   ")
	assert.ErrorIs(t, err, session.ErrEmptyName)
	assert.Equal(t, session.PhaseUnauthenticated, b.Phase())
	assert.Empty(t, client.names)
}

func TestBootstrapConnectsWithTrimmedName(t *testing.T) {
	b := session.NewBootstrap()
	client := &fakeClient{details: validDetails()}

	require.NoError(t, b.Submit(context.Background(), client, "  Ada "))
	assert.Equal(t, []string{"Ada"}, client.names)
	assert.Equal(t, session.PhaseConnected, b.Phase())
	assert.Equal(t, session.ViewSession, b.View())
	assert.Equal(t, "improv_battle_abc123", b.Session().Details().RoomName)
}

func TestBootstrapRequestingStaysOnWelcome(t *testing.T) {
	b := session.NewBootstrap()

	name, err := b.Begin("Ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
	assert.Equal(t, session.PhaseRequesting, b.Phase())
	assert.Equal(t, session.ViewWelcome, b.View())

	_, err = b.Begin("Bob")
	assert.ErrorIs(t, err, session.ErrRequestActive)
}

func TestBootstrapFailureReturnsToWelcome(t *testing.T) {
	b := session.NewBootstrap()
	client := &fakeClient{err: errors.New("connection refused")}

	err := b.Submit(context.Background(), client, "Ada")
	require.Error(t, err)
	assert.Equal(t, session.PhaseFailed, b.Phase())
	assert.Equal(t, session.ViewWelcome, b.View())
	assert.Nil(t, b.Session())
	assert.EqualError(t, b.Err(), "connection refused")

	client.err = nil
	client.details = validDetails()
	require.NoError(t, b.Submit(context.Background(), client, "Ada"))
	assert.Equal(t, session.PhaseConnected, b.Phase())
	assert.NoError(t, b.Err())
}

func TestBootstrapMalformedDetailsFail(t *testing.T) {
	b := session.NewBootstrap()
	_, err := b.Begin("Ada")
	require.NoError(t, err)

	err = b.Complete(connection.Details{ServerURL: "ws://x"}, nil)
	require.Error(t, err)
	assert.Equal(t, session.PhaseFailed, b.Phase())
}

func TestCompleteWithoutRequest(t *testing.T) {
	b := session.NewBootstrap()
	assert.ErrorIs(t, b.Complete(validDetails(), nil), session.ErrNotRequesting)
}

func TestDisconnectClearsEverything(t *testing.T) {
	b, s := connected(t)
	src := newFakeSource()
	require.NoError(t, s.Attach(src))
	s.Handle(hostSaid("Welcome to Improv Battle"))
	require.Equal(t, 1, s.TranscriptLen())

	b.Disconnect()

	assert.Equal(t, session.PhaseUnauthenticated, b.Phase())
	assert.Nil(t, b.Session())
	assert.Equal(t, 1, src.closed)
	assert.True(t, s.Closed())
	assert.Zero(t, s.TranscriptLen())
	assert.Equal(t, connection.Details{}, s.Details())
	assert.Nil(t, s.Events())
	assert.False(t, s.Handle(hostSaid("late")))

	require.NoError(t, b.Submit(context.Background(), &fakeClient{details: validDetails()}, "Ada"))
	assert.Zero(t, b.Session().TranscriptLen())
}

func TestAttachAfterCloseIsRefused(t *testing.T) {
	b, s := connected(t)
	b.Disconnect()

	src := newFakeSource()
	assert.ErrorIs(t, s.Attach(src), session.ErrSessionClosed)
	assert.Equal(t, 1, src.closed)
}

func TestSessionRoutesHostTranscriptions(t *testing.T) {
	_, s := connected(t)

	s.Handle(hostSaid("Hi"))
	s.Handle(hostSaid("Hi"))
	s.Handle(hostSaid("Welcome"))

	entries := s.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, "Hi", entries[0].Text)
	assert.Equal(t, "Welcome", entries[1].Text)
}

func TestSessionIgnoresInterimSegments(t *testing.T) {
	_, s := connected(t)

	changed := s.Handle(transport.Event{
		Type:     transport.EventAgentTranscription,
		Segments: []transport.Segment{{Text: "Welc", Final: false}},
	})
	assert.False(t, changed)

	changed = s.Handle(participantSaid(&transport.Participant{Identity: "Ada"},
		transport.Segment{Text: "I am", Final: false},
		transport.Segment{Text: "I am a pirate", Final: true},
	))
	assert.True(t, changed)

	entries := s.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, "I am a pirate", entries[0].Text)
}

func TestSessionDropsAgentAttributedParticipantSpeech(t *testing.T) {
	_, s := connected(t)

	changed := s.Handle(participantSaid(&transport.Participant{Identity: "improv-host", IsAgent: true},
		transport.Segment{Text: "Let's begin", Final: true}))
	assert.False(t, changed)

	changed = s.Handle(participantSaid(nil, transport.Segment{Text: "who?", Final: true}))
	assert.False(t, changed)

	assert.Zero(t, s.TranscriptLen())
}

func TestSessionStateFollowsSignal(t *testing.T) {
	_, s := connected(t)
	assert.Equal(t, session.StateConnecting, s.State())

	steps := []struct {
		signal transport.AgentState
		want   session.State
	}{
		{transport.AgentStateInitializing, session.StateReady},
		{transport.AgentStateSpeaking, session.StateHostSpeaking},
		{transport.AgentStateListening, session.StateParticipantTurn},
		{transport.AgentStateThinking, session.StateReady},
		{transport.AgentStateDisconnected, session.StateConnecting},
	}
	for _, step := range steps {
		assert.True(t, s.Handle(transport.Event{Type: transport.EventAgentState, State: step.signal}))
		assert.Equal(t, step.signal, s.Signal())
		assert.Equal(t, step.want, s.State(), "signal %s", step.signal)
	}
	assert.False(t, s.Handle(transport.Event{Type: transport.EventAgentState, State: transport.AgentStateDisconnected}))
}

func TestSessionUnknownSignalKeepsReady(t *testing.T) {
	_, s := connected(t)

	assert.True(t, s.Handle(transport.Event{Type: transport.EventAgentState, State: "dancing"}))
	assert.Equal(t, transport.AgentState("dancing"), s.Signal())
	assert.Equal(t, session.StateReady, s.State())
}

func TestBootstrapBuildsTranscriptPerSession(t *testing.T) {
	stamp := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	built := 0
	b := session.NewBootstrap(session.WithTranscriptFactory(func() *transcript.Aggregator {
		built++
		n := 0
		return transcript.NewAggregator(
			transcript.WithIDFunc(func(s model.Speaker) string {
				n++
				return fmt.Sprintf("s%d-%s-%d", built, s, n)
			}),
			transcript.WithClock(func() time.Time { return stamp }),
		)
	}))
	assert.Zero(t, built)

	require.NoError(t, b.Submit(context.Background(), &fakeClient{details: validDetails()}, "Ada"))
	b.Session().Handle(hostSaid("Welcome to Improv Battle"))
	b.Session().Handle(participantSaid(&transport.Participant{Identity: "Ada"}, transport.Segment{Text: "Ready", Final: true}))

	assert.Equal(t, []model.Entry{
		{ID: "s1-host-1", Speaker: model.SpeakerHost, Text: "Welcome to Improv Battle", Timestamp: stamp},
		{ID: "s1-participant-2", Speaker: model.SpeakerParticipant, Text: "Ready", Timestamp: stamp},
	}, b.Session().Transcript())

	b.Disconnect()
	require.NoError(t, b.Submit(context.Background(), &fakeClient{details: validDetails()}, "Ada"))
	b.Session().Handle(hostSaid("Round two"))

	assert.Equal(t, 2, built)
	require.Len(t, b.Session().Transcript(), 1)
	assert.Equal(t, "s2-host-1", b.Session().Transcript()[0].ID)
}
