package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	"github.com/zhouzirui/improv-battle/backend/internal/service/transcript"
)

var (
	ErrEmptyName     = errors.New("player name is required")
	ErrRequestActive = errors.New("connection request already in flight")
	ErrNotRequesting = errors.New("no connection request in flight")
)

// CredentialClient fetches connection details for a player name.
type CredentialClient interface {
	ConnectionDetails(ctx context.Context, name string) (connection.Details, error)
}

// Phase is the bootstrap lifecycle position.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseRequesting
	PhaseConnected
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRequesting:
		return "requesting"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// View is the top-level screen to show.
type View int

const (
	ViewWelcome View = iota
	ViewSession
)

// Bootstrap drives "collect name, fetch credentials, hold connection" and owns
// the connected Session. It cycles: a disconnect returns to the welcome view.
type Bootstrap struct {
	phase   Phase
	pending string
	lastErr error
	session *Session

	newTranscript func() *transcript.Aggregator
}

// BootstrapOption customizes a Bootstrap.
type BootstrapOption func(*Bootstrap)

// WithTranscriptFactory controls how each session's transcript is built.
func WithTranscriptFactory(fn func() *transcript.Aggregator) BootstrapOption {
	return func(b *Bootstrap) { b.newTranscript = fn }
}

func NewBootstrap(opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{
		newTranscript: func() *transcript.Aggregator { return transcript.NewAggregator() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bootstrap) Phase() Phase { return b.phase }

// View shows the session only once connected; requesting and failed stay on welcome.
func (b *Bootstrap) View() View {
	if b.phase == PhaseConnected {
		return ViewSession
	}
	return ViewWelcome
}

// PendingName is the trimmed name of the request in flight or last connected.
func (b *Bootstrap) PendingName() string { return b.pending }

// Err is the error of the last failed request, if any.
func (b *Bootstrap) Err() error { return b.lastErr }

// Session returns the connected session, or nil.
func (b *Bootstrap) Session() *Session { return b.session }

// Begin validates the name and enters the requesting phase. It returns the
// trimmed name to send to the issuer.
func (b *Bootstrap) Begin(name string) (string, error) {
	switch b.phase {
	case PhaseRequesting:
		return "", ErrRequestActive
	case PhaseConnected:
		return "", errors.New("already connected")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	b.phase = PhaseRequesting
	b.pending = name
	b.lastErr = nil
	return name, nil
}

// Complete finishes the in-flight request. On failure the error is logged and
// kept, and the player stays on the welcome view; nothing is retried.
func (b *Bootstrap) Complete(details connection.Details, err error) error {
	if b.phase != PhaseRequesting {
		return ErrNotRequesting
	}

	if err == nil {
		err = details.Validate()
	}
	if err != nil {
		log.Error().Err(err).Str("component", "bootstrap").Str("player", b.pending).Msg("failed to get connection details")
		b.phase = PhaseFailed
		b.lastErr = err
		return err
	}

	b.session = newSession(details, b.newTranscript())
	b.phase = PhaseConnected
	log.Info().Str("component", "bootstrap").Str("player", b.pending).Str("room", details.RoomName).Msg("connected")
	return nil
}

// Submit runs Begin, the credential request and Complete in one blocking call.
func (b *Bootstrap) Submit(ctx context.Context, client CredentialClient, name string) error {
	trimmed, err := b.Begin(name)
	if err != nil {
		return err
	}
	details, err := client.ConnectionDetails(ctx, trimmed)
	return b.Complete(details, err)
}

// Disconnect ends the session, discarding its parameters and transcript.
func (b *Bootstrap) Disconnect() {
	if b.session != nil {
		if err := b.session.Close(); err != nil {
			log.Warn().Err(err).Str("component", "bootstrap").Msg("transport close failed")
		}
		b.session = nil
	}
	b.phase = PhaseUnauthenticated
	b.pending = ""
	b.lastErr = nil
}
