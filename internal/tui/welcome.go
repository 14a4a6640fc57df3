package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/improv-battle/backend/internal/service/session"
)

func (m Model) updateWelcome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	requesting := m.bootstrap.Phase() == session.PhaseRequesting

	switch msg.String() {
	case "esc":
		return m.quit()

	case "enter":
		// 请求进行中或名字为空时按钮不可用
		if requesting || strings.TrimSpace(m.nameInput.Value()) == "" {
			return m, nil
		}
		name, err := m.bootstrap.Begin(m.nameInput.Value())
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = ""
		return m, tea.Batch(m.spinner.Tick, m.fetch(name))
	}

	if requesting {
		return m, nil
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m Model) startEnabled() bool {
	return m.bootstrap.Phase() != session.PhaseRequesting && strings.TrimSpace(m.nameInput.Value()) != ""
}

func (m Model) viewWelcome() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Improv Battle"))
	b.WriteString("\n")
	b.WriteString(taglineStyle.Render("Voice Improv Game Show"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Perform improv scenarios and get real-time AI reactions"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Your Stage Name"))
	b.WriteString("\n")
	b.WriteString(m.nameInput.View())
	b.WriteString("\n\n")

	switch {
	case m.bootstrap.Phase() == session.PhaseRequesting:
		b.WriteString(m.spinner.View() + " Joining as " + m.bootstrap.PendingName() + "...")
	case m.startEnabled():
		b.WriteString(buttonStyle.Render("Start Game"))
	default:
		b.WriteString(buttonDisabledStyle.Render("Start Game"))
	}

	if m.status != "" {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(m.status))
	}

	chips := make([]string, 0, 3)
	for _, item := range []string{"3 Rounds", "Unique Scenarios", "Live Reactions"} {
		chips = append(chips, chipStyle.Render(item))
	}
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chips...))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("Enter: start  Esc/Ctrl+C: quit"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(b.String()))
}
