package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/berth/internal/portainer"
)

// renderHeader renders the status line: server, endpoint, counts, health.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{
		bg.Render("berth", styles.AccentText.Bold(true)),
	}
	if m.serverURL != "" {
		parts = append(parts, bg.Render(m.serverURL, styles.MutedText))
	}
	if sel := m.snapshot.Selected; sel != nil {
		parts = append(parts, bg.Render(sel.DisplayName(), styles.Text))
	}

	running, total := containerCounts(m.snapshot.Containers)
	if m.snapshot.Selected != nil {
		parts = append(parts, bg.Render(fmt.Sprintf("%d/%d running", running, total), styles.MutedText))
	}
	parts = append(parts, m.renderHealth(bg, styles))

	content := bg.Join(parts, "  │  ")
	return styles.Header.Width(m.width).Render(content)
}

func (m Model) renderHealth(bg BgStyle, styles Styles) string {
	snap := m.snapshot
	switch {
	case snap.LoggedOut:
		return bg.Render("logged out", styles.DangerText)
	case snap.IsOffline():
		return bg.Render(fmt.Sprintf("offline (%d failures)", snap.ConsecutiveFailures), styles.DangerText)
	case m.refreshing:
		return bg.Render("refreshing", styles.InfoText)
	case snap.LastError != nil:
		return bg.Render("stale: "+classifyError(snap.LastError), styles.WarningText)
	case !snap.LastUpdated.IsZero():
		return bg.Render("updated "+formatAge(time.Since(snap.LastUpdated))+" ago", styles.SuccessText)
	default:
		return bg.Render("waiting for data", styles.MutedText)
	}
}

// classifyError shortens an error to its kind for the header.
func classifyError(err error) string {
	if kind := portainer.KindOf(err); kind != portainer.KindUnknown {
		return kind.String()
	}
	return "error"
}

func containerCounts(items []portainer.Container) (running, total int) {
	for _, c := range items {
		if c.State == portainer.StateRunning {
			running++
		}
	}
	return running, len(items)
}

// renderCommandBar renders the view tabs and context hints.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Background)

	tabs := []View{ViewContainers, ViewStacks, ViewEndpoints}
	parts := make([]string, 0, len(tabs)+1)
	for i, v := range tabs {
		label := fmt.Sprintf("%d %s", i+1, v)
		if v == m.currentView {
			parts = append(parts, bg.Render(label, styles.AccentText.Bold(true)))
			continue
		}
		parts = append(parts, bg.Render(label, styles.FaintText))
	}
	switch m.currentView {
	case ViewLogs:
		follow := "paused"
		if m.logs.follow {
			follow = "following"
		}
		parts = append(parts, bg.Render("Logs: "+m.logs.name+" ("+follow+")", styles.AccentText.Bold(true)))
	case ViewDetails:
		parts = append(parts, bg.Render("Inspect: "+m.details.name, styles.AccentText.Bold(true)))
	case ViewAttach:
		parts = append(parts, bg.Render("Attach: "+m.attach.name+" (esc back, ctrl+x close)", styles.AccentText.Bold(true)))
	}
	return bg.FillLine(" "+bg.Join(parts, "   "), m.width)
}

// renderFooter shows the last action result or a short key hint.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.status.text != "" {
		style := styles.Footer
		if m.status.isError {
			style = style.Foreground(lipgloss.Color(m.theme.Danger))
		}
		return style.Width(m.width).Render(truncate(m.status.text, max(1, m.width-2)))
	}
	hints := make([]string, 0, 2)
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	return styles.Footer.Width(m.width).Render(strings.Join(hints, "  "))
}

// formatAge renders a coarse duration such as "5s", "3m" or "2h".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
