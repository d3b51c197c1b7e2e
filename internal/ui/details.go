package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/portainer"
)

type detailState struct {
	containerID string
	name        string
	record      *portainer.ContainerDetails
	loading     bool
	err         error
}

type detailsMsg struct {
	containerID string
	details     *portainer.ContainerDetails
	err         error
}

func (m *Model) openDetails(c portainer.Container) {
	m.details = detailState{containerID: c.ID, name: c.DisplayName(), loading: true}
	m.detailViewport.SetContent("")
	m.detailViewport.GotoTop()
	m.currentView = ViewDetails
}

func fetchDetailsCmd(ctx context.Context, b Backend, containerID string) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		d, err := b.InspectContainer(ctx, containerID)
		return detailsMsg{containerID: containerID, details: d, err: err}
	}
}

func (m *Model) handleDetails(msg detailsMsg) {
	if msg.containerID != m.details.containerID {
		return
	}
	m.details.loading = false
	m.details.err = msg.err
	m.details.record = msg.details
	if msg.details != nil {
		m.detailViewport.SetContent(m.formatDetails(msg.details))
	}
}

func (m Model) renderDetails() string {
	height := max(1, m.bodyHeight())
	switch {
	case m.details.loading:
		return m.renderPlaceholder("Inspecting "+m.details.name+"...", height)
	case m.details.err != nil:
		return m.renderPlaceholder("Inspect failed: "+m.details.err.Error(), height)
	case m.details.record == nil:
		return m.renderPlaceholder("Nothing to show.", height)
	}
	return m.detailViewport.View()
}

// formatDetails renders the inspect record as labeled sections.
func (m Model) formatDetails(d *portainer.ContainerDetails) string {
	styles := m.theme.Styles()
	var b strings.Builder
	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.AccentText.Bold(true).Render(title))
		b.WriteString("\n")
	}
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(styles.MutedText.Render(padRight(label, 14)))
		b.WriteString(styles.Text.Render(value))
		b.WriteString("\n")
	}

	section("Container")
	field("Name", strings.TrimPrefix(d.Name, "/"))
	field("ID", d.ID)
	field("Image", d.Image)
	field("Created", formatTime(d.Created.Time))
	field("Command", strings.TrimSpace(d.Path+" "+strings.Join(d.Args, " ")))
	field("Restarts", fmt.Sprint(d.RestartCount))
	field("Platform", d.Platform)

	if s := d.State; s != nil {
		section("State")
		b.WriteString(styles.MutedText.Render(padRight("Status", 14)))
		b.WriteString(styles.StatusStyle(string(s.Status)).Render(string(s.Status)))
		b.WriteString("\n")
		if s.Pid > 0 {
			field("PID", fmt.Sprint(s.Pid))
		}
		field("Started", formatTime(s.StartedAt.Time))
		if !s.Running {
			field("Finished", formatTime(s.FinishedAt.Time))
			field("Exit code", fmt.Sprint(s.ExitCode))
		}
		if s.OOMKilled {
			field("OOM killed", "yes")
		}
		field("Error", s.Error)
		if s.Health != nil {
			field("Health", s.Health.Status)
		}
	}

	if cfg := d.Config; cfg != nil {
		if len(cfg.Env) > 0 {
			section("Environment")
			for _, env := range cfg.Env {
				b.WriteString(styles.Text.Render(env))
				b.WriteString("\n")
			}
		}
		if len(cfg.Labels) > 0 {
			section("Labels")
			keys := make([]string, 0, len(cfg.Labels))
			for k := range cfg.Labels {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				b.WriteString(styles.MutedText.Render(k + "="))
				b.WriteString(styles.Text.Render(cfg.Labels[k]))
				b.WriteString("\n")
			}
		}
	}

	if ns := d.NetworkSettings; ns != nil && len(ns.Networks) > 0 {
		section("Networks")
		names := make([]string, 0, len(ns.Networks))
		for name := range ns.Networks {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			settings := ns.Networks[name]
			addr := ""
			if settings != nil {
				addr = settings.IPAddress
			}
			field(name, addr)
		}
	}

	if len(d.Mounts) > 0 {
		section("Mounts")
		for _, mnt := range d.Mounts {
			mode := "rw"
			if !mnt.RW {
				mode = "ro"
			}
			b.WriteString(styles.Text.Render(fmt.Sprintf("%s -> %s (%s)", mnt.Source, mnt.Destination, mode)))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
