package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/berth/internal/portainer"
)

// attachState tracks the session shown in the attach view. The session itself
// belongs to the coordinator; leaving the view only drops the subscription.
type attachState struct {
	containerID string
	name        string
	session     *portainer.AttachSession
	events      <-chan portainer.AttachEvent
	unsubscribe func()
	output      string
	connecting  bool
	closed      bool
	err         error
}

type attachOpenedMsg struct {
	containerID string
	session     *portainer.AttachSession
	err         error
}

type attachEventMsg struct {
	events <-chan portainer.AttachEvent
	event  portainer.AttachEvent
	ok     bool
}

func (m Model) openAttach(c portainer.Container) (tea.Model, tea.Cmd) {
	m.leaveAttach()
	m.attach = attachState{containerID: c.ID, name: c.DisplayName(), connecting: true}
	m.attachViewport.SetContent("")
	m.attachInput.SetValue("")
	m.currentView = ViewAttach
	return m, tea.Batch(m.attachInput.Focus(), attachCmd(m.ctx, m.backend, c.ID))
}

func attachCmd(ctx context.Context, b Backend, containerID string) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		s, err := b.Attach(ctx, containerID)
		return attachOpenedMsg{containerID: containerID, session: s, err: err}
	}
}

func waitForAttachEvent(events <-chan portainer.AttachEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return attachEventMsg{events: events, event: ev, ok: ok}
	}
}

func (m Model) handleAttachOpened(msg attachOpenedMsg) (tea.Model, tea.Cmd) {
	if msg.containerID != m.attach.containerID || m.currentView != ViewAttach {
		return m, nil
	}
	m.attach.connecting = false
	if msg.err != nil {
		m.attach.err = msg.err
		m.attach.closed = true
		return m, nil
	}
	output, events, unsubscribe := msg.session.SubscribeWithOutput()
	m.attach.session = msg.session
	m.attach.events = events
	m.attach.unsubscribe = unsubscribe
	m.attach.output = output
	m.syncAttachViewport()
	return m, waitForAttachEvent(events)
}

func (m Model) handleAttachEvent(msg attachEventMsg) (tea.Model, tea.Cmd) {
	// Events from a subscription this view already dropped are stale.
	if m.attach.events == nil || msg.events != m.attach.events {
		return m, nil
	}
	if !msg.ok {
		m.attach.events = nil
		return m, nil
	}
	if msg.event.Data != "" {
		m.attach.output += msg.event.Data
		m.syncAttachViewport()
	}
	if msg.event.Closed {
		m.attach.closed = true
		m.attach.err = msg.event.Err
		m.attach.events = nil
		return m, nil
	}
	return m, waitForAttachEvent(m.attach.events)
}

func (m *Model) syncAttachViewport() {
	m.attachViewport.SetContent(m.attach.output)
	m.attachViewport.GotoBottom()
}

// leaveAttach stops listening to the current session without closing it.
func (m *Model) leaveAttach() {
	if m.attach.unsubscribe != nil {
		m.attach.unsubscribe()
	}
	m.attach.unsubscribe = nil
	m.attach.events = nil
	m.attachInput.Blur()
}

// handleAttachKey routes keys to the input line, except for the view controls.
func (m Model) handleAttachKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.leaveAttach()
		m.currentView = ViewContainers
		return m, nil
	case "ctrl+x":
		id, name := m.attach.containerID, m.attach.name
		m.leaveAttach()
		m.currentView = ViewContainers
		if m.backend == nil || id == "" {
			return m, nil
		}
		b := m.backend
		return m, func() tea.Msg {
			b.Detach(id)
			return actionDoneMsg{label: "detached " + name}
		}
	case "enter":
		s := m.attach.session
		if s == nil || m.attach.closed {
			return m, nil
		}
		line := m.attachInput.Value() + "\n"
		m.attachInput.SetValue("")
		return m, func() tea.Msg {
			if err := s.Send(line); err != nil {
				return actionDoneMsg{label: "send", err: err}
			}
			return nil
		}
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.attachViewport, cmd = m.attachViewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.attachInput, cmd = m.attachInput.Update(msg)
	return m, cmd
}

func (m Model) renderAttach() string {
	styles := m.theme.Styles()
	height := max(1, m.bodyHeight())

	var body string
	switch {
	case m.attach.connecting:
		body = m.renderPlaceholder("Attaching to "+m.attach.name+"...", height-1)
	case m.attach.output == "" && m.attach.err != nil:
		body = m.renderPlaceholder("Attach failed: "+m.attach.err.Error(), height-1)
	default:
		body = m.attachViewport.View()
	}

	var prompt string
	switch {
	case m.attach.closed && m.attach.err != nil:
		prompt = styles.DangerText.Render(" session ended: " + m.attach.err.Error())
	case m.attach.closed:
		prompt = styles.MutedText.Render(" session closed")
	default:
		prompt = m.attachInput.View()
	}
	return body + "\n" + prompt
}
