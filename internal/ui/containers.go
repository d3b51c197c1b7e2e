package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/state"
)

// visibleContainers applies the show-stopped preference.
func visibleContainers(snap state.Snapshot, showStopped bool) []portainer.Container {
	if showStopped {
		return snap.Containers
	}
	out := make([]portainer.Container, 0, len(snap.Containers))
	for _, c := range snap.Containers {
		switch c.State {
		case portainer.StateRunning, portainer.StatePaused, portainer.StateRestarting:
			out = append(out, c)
		}
	}
	return out
}

func (m Model) visibleContainers() []portainer.Container {
	return visibleContainers(m.snapshot, m.prefs.ShowStopped)
}

func (m Model) selectedContainer() (portainer.Container, bool) {
	items := m.visibleContainers()
	if m.selectedRow < 0 || m.selectedRow >= len(items) {
		return portainer.Container{}, false
	}
	return items[m.selectedRow], true
}

// restoreContainerCursor moves the cursor back onto the remembered container,
// following it through recreation via the snapshot's stable keys.
func (m *Model) restoreContainerCursor() {
	items := m.visibleContainers()
	if m.selectedKey != "" {
		for i, c := range items {
			if m.snapshot.KeyOf(c.ID) == m.selectedKey {
				m.selectedRow = i
				return
			}
		}
	}
	m.selectedRow = clampRow(m.selectedRow, len(items))
	m.rememberContainer()
}

func (m *Model) rememberContainer() {
	if c, ok := m.selectedContainer(); ok {
		m.selectedKey = m.snapshot.KeyOf(c.ID)
		return
	}
	m.selectedKey = ""
}

// handleContainersKey processes keyboard input for the containers view.
func (m Model) handleContainersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "f" {
		m.prefs.ShowStopped = !m.prefs.ShowStopped
		m.savePrefs()
		m.restoreContainerCursor()
		return m, nil
	}

	items := m.visibleContainers()
	if len(items) == 0 {
		return m, nil
	}
	if row, ok := moveCursor(msg.String(), m.selectedRow, len(items), m.bodyHeight()-1); ok {
		m.selectedRow = row
		m.rememberContainer()
		return m, nil
	}

	c := items[m.selectedRow]
	switch msg.String() {
	case "s":
		return m, m.containerAction(portainer.ActionStart, c)
	case "x":
		return m, m.containerAction(portainer.ActionStop, c)
	case "r":
		return m, m.containerAction(portainer.ActionRestart, c)
	case "K":
		return m, m.containerAction(portainer.ActionKill, c)
	case "p":
		if c.State == portainer.StatePaused {
			return m, m.containerAction(portainer.ActionUnpause, c)
		}
		return m, m.containerAction(portainer.ActionPause, c)
	case "D":
		return m, removeContainerCmd(m.ctx, m.backend, c)
	case "l", "enter":
		m.openLogs(c)
		return m, m.refreshLogs()
	case "i":
		m.openDetails(c)
		return m, fetchDetailsCmd(m.ctx, m.backend, c.ID)
	case "a":
		return m.openAttach(c)
	}
	return m, nil
}

func (m Model) containerAction(action portainer.Action, c portainer.Container) tea.Cmd {
	if m.backend == nil {
		return nil
	}
	ctx, b := m.ctx, m.backend
	label := fmt.Sprintf("%s %s", action, c.DisplayName())
	return func() tea.Msg {
		return actionDoneMsg{label: label, err: b.ExecuteAction(ctx, action, c.ID)}
	}
}

// removeContainerCmd forces removal of containers that are still running.
func removeContainerCmd(ctx context.Context, b Backend, c portainer.Container) tea.Cmd {
	if b == nil {
		return nil
	}
	force := c.State == portainer.StateRunning || c.State == portainer.StatePaused || c.State == portainer.StateRestarting
	return func() tea.Msg {
		return actionDoneMsg{label: "remove " + c.DisplayName(), err: b.RemoveContainer(ctx, c.ID, force)}
	}
}

// containerStateLabel reflects pending removal before the server confirms it.
func (m Model) containerStateLabel(c portainer.Container) string {
	if m.snapshot.RemovingContainers[c.ID] {
		return string(portainer.StateRemoving)
	}
	if c.State == "" {
		return "unknown"
	}
	return string(c.State)
}

// renderContainers renders the container table.
func (m Model) renderContainers() string {
	styles := m.theme.Styles()
	height := max(1, m.bodyHeight())
	if m.snapshot.Selected == nil {
		return m.renderPlaceholder("No endpoint selected. Press 3 to choose one.", height)
	}
	items := m.visibleContainers()
	if len(items) == 0 {
		return m.renderPlaceholder("No containers.", height)
	}

	nameW, stackW, stateW := 28, 18, 11
	statusW := 22
	imageW := max(10, m.width-nameW-stackW-stateW-statusW-6)

	var b strings.Builder
	header := " " + padRight("NAME", nameW) + " " + padRight("STACK", stackW) + " " +
		padRight("STATE", stateW) + " " + padRight("STATUS", statusW) + " " + padRight("IMAGE", imageW)
	b.WriteString(styles.MutedText.Bold(true).Render(header))

	start, end := windowRange(m.selectedRow, len(items), height-1)
	for i := start; i < end; i++ {
		c := items[i]
		label := m.containerStateLabel(c)
		marker := " "
		if m.snapshot.Attached[c.ID] {
			marker = "*"
		}
		name := padRight(marker+c.DisplayName(), nameW+1)
		stack := padRight(c.StackName(), stackW)
		stateCell := padRight(label, stateW)
		status := padRight(c.Status, statusW)
		image := padRight(c.Image, imageW)

		b.WriteString("\n")
		if i == m.selectedRow {
			b.WriteString(styles.Selected.Render(name + " " + stack + " " + stateCell + " " + status + " " + image))
			continue
		}
		b.WriteString(styles.Text.Render(name + " " + stack + " "))
		b.WriteString(styles.StatusStyle(label).Render(stateCell))
		b.WriteString(styles.MutedText.Render(" " + status + " " + image))
	}
	return b.String()
}

func (m Model) renderPlaceholder(text string, height int) string {
	styles := m.theme.Styles()
	return styles.MutedText.Render(" "+text) + strings.Repeat("\n", max(0, height-1))
}

// moveCursor applies a navigation key to row. ok is false for other keys.
func moveCursor(keyName string, row, count, page int) (int, bool) {
	if page < 1 {
		page = 1
	}
	switch keyName {
	case "j", "down":
		row++
	case "k", "up":
		row--
	case "g", "home":
		row = 0
	case "G", "end":
		row = count - 1
	case "ctrl+d", "pgdown":
		row += page
	case "ctrl+u", "pgup":
		row -= page
	default:
		return row, false
	}
	return clampRow(row, count), true
}

func clampRow(row, count int) int {
	if count <= 0 || row < 0 {
		return 0
	}
	if row >= count {
		return count - 1
	}
	return row
}

// windowRange returns the slice of rows to draw so that cursor stays visible.
func windowRange(cursor, total, height int) (int, int) {
	if height <= 0 || total <= height {
		return 0, total
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	return start, min(total, start+height)
}
