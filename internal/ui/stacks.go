package ui

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/portainer"
)

// handleStacksKey processes keyboard input for the stacks view.
func (m Model) handleStacksKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	stacks := m.snapshot.Stacks
	if len(stacks) == 0 {
		return m, nil
	}
	if row, ok := moveCursor(msg.String(), m.stackRow, len(stacks), m.bodyHeight()-1); ok {
		m.stackRow = row
		return m, nil
	}

	st := stacks[m.stackRow]
	switch msg.String() {
	case "enter":
		return m, setStackStateCmd(m.ctx, m.backend, st, !st.Started())
	case "s":
		return m, setStackStateCmd(m.ctx, m.backend, st, true)
	case "x":
		return m, setStackStateCmd(m.ctx, m.backend, st, false)
	case "D":
		return m, removeStackCmd(m.ctx, m.backend, st)
	}
	return m, nil
}

func setStackStateCmd(ctx context.Context, b Backend, st portainer.Stack, started bool) tea.Cmd {
	if b == nil {
		return nil
	}
	label := "stop " + st.Name
	if started {
		label = "start " + st.Name
	}
	return func() tea.Msg {
		return actionDoneMsg{label: label, err: b.SetStackState(ctx, st.ID, started)}
	}
}

func removeStackCmd(ctx context.Context, b Backend, st portainer.Stack) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		return actionDoneMsg{label: "remove stack " + st.Name, err: b.RemoveStack(ctx, st.ID)}
	}
}

// stackStateLabel prefers the transient markers over the last known status.
func (m Model) stackStateLabel(st portainer.Stack) string {
	switch {
	case m.snapshot.RemovingStacks[st.ID]:
		return "removing"
	case m.snapshot.LoadingStacks[st.ID]:
		return "loading"
	default:
		return st.Status.String()
	}
}

func (m Model) endpointName(id int) string {
	for _, e := range m.snapshot.Endpoints {
		if e.ID == id {
			return e.DisplayName()
		}
	}
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}

// renderStacks renders the stack table.
func (m Model) renderStacks() string {
	styles := m.theme.Styles()
	height := max(1, m.bodyHeight())
	stacks := m.snapshot.Stacks
	if len(stacks) == 0 {
		return m.renderPlaceholder("No stacks.", height)
	}

	nameW, typeW, stateW := 30, 12, 10
	endpointW := max(10, m.width-nameW-typeW-stateW-5)

	var b strings.Builder
	header := " " + padRight("NAME", nameW) + " " + padRight("TYPE", typeW) + " " +
		padRight("STATUS", stateW) + " " + padRight("ENDPOINT", endpointW)
	b.WriteString(styles.MutedText.Bold(true).Render(header))

	start, end := windowRange(m.stackRow, len(stacks), height-1)
	for i := start; i < end; i++ {
		st := stacks[i]
		label := m.stackStateLabel(st)
		name := " " + padRight(st.Name, nameW)
		kind := padRight(st.Type.String(), typeW)
		stateCell := padRight(label, stateW)
		endpoint := padRight(m.endpointName(st.EndpointID), endpointW)

		b.WriteString("\n")
		if i == m.stackRow {
			b.WriteString(styles.Selected.Render(name + " " + kind + " " + stateCell + " " + endpoint))
			continue
		}
		b.WriteString(styles.Text.Render(name + " "))
		b.WriteString(styles.MutedText.Render(kind + " "))
		b.WriteString(styles.StatusStyle(label).Render(stateCell))
		b.WriteString(styles.MutedText.Render(" " + endpoint))
	}
	return b.String()
}
