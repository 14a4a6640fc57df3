package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	model "github.com/zhouzirui/improv-battle/backend/internal/model/transcript"
	"github.com/zhouzirui/improv-battle/backend/internal/service/session"
)

func (m Model) updateSession(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "t":
		m.showTranscript = !m.showTranscript
	case "esc":
		m.showTranscript = false
	case "e":
		// End Session: 丢弃连接参数与记录，回到欢迎页
		m.bootstrap.Disconnect()
		m.gen++
		m.status = ""
		m.showTranscript = false
		m.nameInput.Reset()
		m.nameInput.Focus()
	case "q":
		return m.quit()
	}
	return m, nil
}

func (m Model) viewSession() string {
	sess := m.bootstrap.Session()
	if sess == nil {
		return ""
	}

	name := sess.Details().ParticipantName
	header := dimStyle.Render("Player name: ") + labelStyle.Render(name)

	toggle := taglineStyle.Render("Transcript")
	if n := sess.TranscriptLen(); n > 0 {
		toggle += " " + badgeStyle.Render(fmt.Sprintf("%d", n))
	}

	gap := m.width - lipgloss.Width(header) - lipgloss.Width(toggle)
	if gap < 1 {
		gap = 1
	}
	top := header + strings.Repeat(" ", gap) + toggle

	state := sess.State()
	p := session.Present(state)
	indicator := lipgloss.NewStyle().Foreground(indicatorColor[state.String()]).Render("◉")

	center := lipgloss.JoinVertical(lipgloss.Center,
		indicator,
		"",
		stateTitleStyle.Render(p.Title),
		dimStyle.Render(p.Hint),
		"",
		boxStyle.Render(strings.Join([]string{
			labelStyle.Render("How to Play"),
			"• Listen to your scenario from the host",
			"• Perform your improv in character",
			"• Say " + labelStyle.Render(`"end scene"`) + " when done",
			"• Receive feedback and move to next round",
		}, "\n")),
		"",
		endStyle.Render("End Session (e)"),
	)
	if m.status != "" {
		center = lipgloss.JoinVertical(lipgloss.Center, center, "", errorStyle.Render(m.status))
	}

	bodyHeight := m.height - 3
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, center)
	if m.showTranscript {
		panelWidth := m.width / 2
		if panelWidth < 30 {
			panelWidth = 30
		}
		mainWidth := m.width - panelWidth
		if mainWidth < 0 {
			mainWidth = 0
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.Place(mainWidth, bodyHeight, lipgloss.Center, lipgloss.Center, center),
			panelStyle.Width(panelWidth-3).Height(bodyHeight).Render(renderTranscript(sess.Transcript(), name, bodyHeight)),
		)
	}

	help := helpStyle.Render("t: transcript  e: end session  q/Ctrl+C: quit")
	return lipgloss.JoinVertical(lipgloss.Left, top, body, help)
}

// renderTranscript shows the newest entries that fit in height.
func renderTranscript(entries []model.Entry, playerName string, height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversation"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Session transcript"))
	b.WriteString("\n\n")

	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("No messages yet"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Start the conversation"))
	} else {
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			label := hostLabelStyle.Render("Host")
			if e.Speaker == model.SpeakerParticipant {
				label = playerLabelStyle.Render(playerName)
			}
			lines = append(lines, label+" "+dimStyle.Render(e.Timestamp.Format("15:04"))+"\n"+e.Text)
		}
		// 每条记录约占三行，超出时只保留最新的
		if limit := (height - 6) / 3; limit > 0 && len(lines) > limit {
			lines = lines[len(lines)-limit:]
		}
		b.WriteString(strings.Join(lines, "\n\n"))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Transcript saved for this session only"))
	return b.String()
}
