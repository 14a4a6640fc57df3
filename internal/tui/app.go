// Package tui is the terminal front end of the game: a welcome screen that
// collects the stage name and a session screen that follows the host.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	"github.com/zhouzirui/improv-battle/backend/internal/service/session"
	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

const requestTimeout = 15 * time.Second

// Connector opens the room event subscription for a connected session.
type Connector interface {
	Connect(ctx context.Context, details connection.Details) (transport.Source, error)
}

// RelayConnector subscribes through the backend relay next to the credential API.
type RelayConnector struct {
	APIBase string
}

func (c RelayConnector) Connect(ctx context.Context, details connection.Details) (transport.Source, error) {
	url, err := transport.EventsURL(c.APIBase, details.RoomName)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, url, details.ParticipantToken)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type connectionMsg struct {
	details connection.Details
	err     error
}

type attachedMsg struct {
	gen int
	src transport.Source
	err error
}

type eventMsg struct {
	gen int
	ev  transport.Event
}

type streamClosedMsg struct {
	gen int
}

type Model struct {
	bootstrap *session.Bootstrap
	client    session.CredentialClient
	connector Connector

	nameInput      textinput.Model
	spinner        spinner.Model
	showTranscript bool
	status         string
	// gen invalidates commands started for an earlier session.
	gen int

	width    int
	height   int
	quitting bool
}

// NewModel builds the client UI. initialName pre-fills the stage name.
func NewModel(client session.CredentialClient, connector Connector, initialName string) Model {
	ni := textinput.New()
	ni.Placeholder = "Enter name"
	ni.CharLimit = 64
	ni.SetValue(initialName)
	ni.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		bootstrap: session.NewBootstrap(),
		client:    client,
		connector: connector,
		nameInput: ni,
		spinner:   sp,
		width:     80,
		height:    24,
	}
}

// Bootstrap exposes the session lifecycle, mainly for tests and the caller's cleanup.
func (m Model) Bootstrap() *session.Bootstrap { return m.bootstrap }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.bootstrap.View() == session.ViewSession {
			return m.updateSession(msg)
		}
		return m.updateWelcome(msg)

	case spinner.TickMsg:
		if m.bootstrap.Phase() != session.PhaseRequesting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectionMsg:
		if err := m.bootstrap.Complete(msg.details, msg.err); err != nil {
			if m.bootstrap.Phase() == session.PhaseFailed {
				m.status = "Could not start the game: " + err.Error()
			}
			return m, nil
		}
		m.gen++
		m.status = ""
		m.showTranscript = false
		return m, m.connect(m.gen, m.bootstrap.Session().Details())

	case attachedMsg:
		return m.attach(msg)

	case eventMsg:
		sess := m.bootstrap.Session()
		if msg.gen != m.gen || sess == nil {
			return m, nil
		}
		sess.Handle(msg.ev)
		return m, waitForEvent(m.gen, sess.Events())

	case streamClosedMsg:
		if msg.gen == m.gen && m.bootstrap.Session() != nil {
			m.status = "Lost connection to the room"
		}
		return m, nil
	}

	if m.bootstrap.View() == session.ViewWelcome {
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.bootstrap.View() == session.ViewSession {
		return m.viewSession()
	}
	return m.viewWelcome()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.bootstrap.Disconnect()
	m.gen++
	m.quitting = true
	return m, tea.Quit
}

func (m Model) fetch(name string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		details, err := client.ConnectionDetails(ctx, name)
		return connectionMsg{details: details, err: err}
	}
}

func (m Model) connect(gen int, details connection.Details) tea.Cmd {
	connector := m.connector
	if connector == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		src, err := connector.Connect(ctx, details)
		return attachedMsg{gen: gen, src: src, err: err}
	}
}

func (m Model) attach(msg attachedMsg) (tea.Model, tea.Cmd) {
	sess := m.bootstrap.Session()
	if msg.gen != m.gen || sess == nil {
		if msg.src != nil {
			_ = msg.src.Close()
		}
		return m, nil
	}
	if msg.err != nil {
		log.Error().Err(msg.err).Str("component", "tui").Str("room", sess.Details().RoomName).Msg("room subscription failed")
		m.status = "Room unavailable: " + msg.err.Error()
		return m, nil
	}
	if err := sess.Attach(msg.src); err != nil {
		return m, nil
	}
	return m, waitForEvent(m.gen, sess.Events())
}

// waitForEvent reads one event per command so Update stays the only writer.
func waitForEvent(gen int, ch <-chan transport.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{gen: gen}
		}
		return eventMsg{gen: gen, ev: ev}
	}
}
