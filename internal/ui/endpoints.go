package ui

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/portainer"
)

// handleEndpointsKey processes keyboard input for the endpoints view.
func (m Model) handleEndpointsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	endpoints := m.snapshot.Endpoints
	if len(endpoints) == 0 {
		return m, nil
	}
	if row, ok := moveCursor(msg.String(), m.endpointRow, len(endpoints), m.bodyHeight()-1); ok {
		m.endpointRow = row
		return m, nil
	}
	if msg.String() == "enter" {
		e := endpoints[m.endpointRow]
		return m, selectEndpointCmd(m.ctx, m.backend, &e)
	}
	return m, nil
}

func selectEndpointCmd(ctx context.Context, b Backend, e *portainer.Endpoint) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := b.SetSelectedEndpoint(ctx, e)
		return endpointSelectedMsg{err: err}
	}
}

func endpointStatusLabel(s portainer.EndpointStatus) string {
	switch s {
	case portainer.EndpointStatusUp:
		return "up"
	case portainer.EndpointStatusDown:
		return "down"
	default:
		return "unknown"
	}
}

// renderEndpoints renders the endpoint table with the selected endpoint marked.
func (m Model) renderEndpoints() string {
	styles := m.theme.Styles()
	height := max(1, m.bodyHeight())
	endpoints := m.snapshot.Endpoints
	if len(endpoints) == 0 {
		return m.renderPlaceholder("No endpoints.", height)
	}

	idW, nameW, statusW := 6, 28, 8
	urlW := max(10, m.width-idW-nameW-statusW-6)
	selected := m.snapshot.SelectedID()

	var b strings.Builder
	header := "  " + padRight("ID", idW) + " " + padRight("NAME", nameW) + " " +
		padRight("STATUS", statusW) + " " + padRight("URL", urlW)
	b.WriteString(styles.MutedText.Bold(true).Render(header))

	start, end := windowRange(m.endpointRow, len(endpoints), height-1)
	for i := start; i < end; i++ {
		e := endpoints[i]
		marker := "  "
		if e.ID == selected {
			marker = "> "
		}
		status := endpointStatusLabel(e.Status)
		row := marker + padRight(strconv.Itoa(e.ID), idW) + " " + padRight(e.DisplayName(), nameW) + " "
		statusCell := padRight(status, statusW)
		url := padRight(e.URL, urlW)

		b.WriteString("\n")
		if i == m.endpointRow {
			b.WriteString(styles.Selected.Render(row + statusCell + " " + url))
			continue
		}
		b.WriteString(styles.Text.Render(row))
		switch e.Status {
		case portainer.EndpointStatusUp:
			b.WriteString(styles.SuccessText.Render(statusCell))
		case portainer.EndpointStatusDown:
			b.WriteString(styles.DangerText.Render(statusCell))
		default:
			b.WriteString(styles.MutedText.Render(statusCell))
		}
		b.WriteString(styles.MutedText.Render(" " + url))
	}
	return b.String()
}
