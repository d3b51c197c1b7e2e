package ui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/logtail"
	"github.com/five82/berth/internal/portainer"
)

// logState holds the log view for one container.
type logState struct {
	containerID string
	name        string
	lines       []string
	follow      bool
	loading     bool
	err         error
}

type logsMsg struct {
	containerID string
	lines       []string
	err         error
}

func (m *Model) openLogs(c portainer.Container) {
	if m.logs.containerID != c.ID {
		m.logs = logState{containerID: c.ID, name: c.DisplayName(), follow: true}
		m.logViewport.SetContent("")
	}
	m.logs.loading = true
	m.currentView = ViewLogs
}

// refreshLogs fetches the tail of the current container's log.
func (m Model) refreshLogs() tea.Cmd {
	if m.backend == nil || m.logs.containerID == "" {
		return nil
	}
	return fetchLogsCmd(m.ctx, m.backend, m.logs.containerID, m.prefs.LogLines)
}

func fetchLogsCmd(ctx context.Context, b Backend, containerID string, maxLines int) tea.Cmd {
	return func() tea.Msg {
		text, err := b.FetchLogs(ctx, containerID, portainer.LogOptions{Tail: maxLines})
		if err != nil {
			return logsMsg{containerID: containerID, err: err}
		}
		return logsMsg{containerID: containerID, lines: logtail.Lines(text, maxLines)}
	}
}

// handleLogs applies a fetch result; results for another container are stale.
func (m *Model) handleLogs(msg logsMsg) {
	if msg.containerID != m.logs.containerID {
		return
	}
	m.logs.loading = false
	m.logs.err = msg.err
	if msg.err != nil {
		return
	}
	m.logs.lines = msg.lines
	m.logViewport.SetContent(strings.Join(msg.lines, "\n"))
	if m.logs.follow {
		m.logViewport.GotoBottom()
	}
}

// handleLogsKey processes keyboard input for the logs view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ":
		m.logs.follow = !m.logs.follow
		if m.logs.follow {
			m.logViewport.GotoBottom()
		}
		return m, nil
	case "g", "home":
		m.logs.follow = false
		m.logViewport.GotoTop()
		return m, nil
	case "G", "end":
		m.logs.follow = true
		m.logViewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if !m.logViewport.AtBottom() {
		m.logs.follow = false
	}
	return m, cmd
}

func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	height := max(1, m.bodyHeight())
	switch {
	case m.logs.err != nil && len(m.logs.lines) == 0:
		return m.renderPlaceholder("Logs unavailable: "+m.logs.err.Error(), height)
	case m.logs.loading && len(m.logs.lines) == 0:
		return m.renderPlaceholder("Loading logs for "+m.logs.name+"...", height)
	case len(m.logs.lines) == 0:
		return m.renderPlaceholder("No log output.", height)
	}
	view := m.logViewport.View()
	if m.logs.err != nil {
		view += "\n" + styles.DangerText.Render(" "+m.logs.err.Error())
	}
	return view
}
