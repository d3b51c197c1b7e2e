package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/prefs"
	"github.com/five82/berth/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewContainers View = iota
	ViewStacks
	ViewEndpoints
	ViewLogs
	ViewDetails
	ViewAttach
)

func (v View) String() string {
	switch v {
	case ViewContainers:
		return "Containers"
	case ViewStacks:
		return "Stacks"
	case ViewEndpoints:
		return "Endpoints"
	case ViewLogs:
		return "Logs"
	case ViewDetails:
		return "Inspect"
	case ViewAttach:
		return "Attach"
	default:
		return ""
	}
}

// Backend is the part of the coordinator the UI drives.
type Backend interface {
	Snapshot() state.Snapshot
	Subscribe() (<-chan struct{}, func())
	IsRefreshing() bool
	RefreshAll(ctx context.Context) (state.Snapshot, error)
	SetSelectedEndpoint(ctx context.Context, endpoint *portainer.Endpoint) (state.Snapshot, error)
	ExecuteAction(ctx context.Context, action portainer.Action, containerID string) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
	SetStackState(ctx context.Context, stackID int, started bool) error
	RemoveStack(ctx context.Context, stackID int) error
	InspectContainer(ctx context.Context, containerID string) (*portainer.ContainerDetails, error)
	FetchLogs(ctx context.Context, containerID string, opts portainer.LogOptions) (string, error)
	Attach(ctx context.Context, containerID string) (*portainer.AttachSession, error)
	Detach(containerID string)
}

var _ Backend = (*state.Coordinator)(nil)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Backend   Backend
	Logger    zerolog.Logger
	ServerURL string
	PollTick  time.Duration
	Prefs     prefs.Prefs
	PrefsPath string
}

// statusLine is the transient message shown in the footer.
type statusLine struct {
	text    string
	isError bool
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	backend   Backend
	logger    zerolog.Logger
	serverURL string
	prefs     prefs.Prefs
	prefsPath string
	pollTick  time.Duration
	keys      keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	status      statusLine

	// Data state
	snapshot    state.Snapshot
	changes     <-chan struct{}
	unsubscribe func()
	refreshing  bool

	// Table cursors. selectedKey follows a container across recreation.
	selectedRow int
	selectedKey string
	stackRow    int
	endpointRow int

	logViewport viewport.Model
	logs        logState

	detailViewport viewport.Model
	details        detailState

	attachViewport viewport.Model
	attachInput    textinput.Model
	attach         attachState
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}

	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "input for the attached process"

	m := Model{
		ctx:         ctx,
		backend:     opts.Backend,
		logger:      opts.Logger.With().Str("component", "ui").Logger(),
		serverURL:   opts.ServerURL,
		prefs:       p,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(p.Theme),
		currentView: ViewContainers,
		attachInput: input,
		logs:        logState{follow: true},
	}
	if m.backend != nil {
		m.snapshot = m.backend.Snapshot()
		m.changes, m.unsubscribe = m.backend.Subscribe()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.backend != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.backend), waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewports()
		m.ready = true
		return m, nil

	case tickMsg:
		return m.handleTick()

	case changedMsg:
		return m, tea.Batch(fetchSnapshotCmd(m.backend), waitForChange(m.changes))

	case snapshotMsg:
		m.applySnapshot(msg.snapshot)
		m.refreshing = msg.refreshing
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Str("action", msg.label).Msg("action failed")
			m.status = statusLine{text: msg.label + ": " + msg.err.Error(), isError: true}
		} else {
			m.status = statusLine{text: msg.label}
		}
		return m, nil

	case endpointSelectedMsg:
		if msg.err != nil {
			m.status = statusLine{text: "select endpoint: " + msg.err.Error(), isError: true}
			return m, nil
		}
		m.currentView = ViewContainers
		m.selectedRow = 0
		m.selectedKey = ""
		return m, nil

	case logsMsg:
		m.handleLogs(msg)
		return m, nil

	case detailsMsg:
		m.handleDetails(msg)
		return m, nil

	case attachOpenedMsg:
		return m.handleAttachOpened(msg)

	case attachEventMsg:
		return m.handleAttachEvent(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// The attach view owns the keyboard so input reaches the process.
	if m.currentView == ViewAttach {
		return m.handleAttachKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "?":
		m.showHelp = true
		return m, nil

	case "T":
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil

	case "ctrl+r":
		m.refreshing = true
		return m, refreshCmd(m.ctx, m.backend)

	case "1":
		m.currentView = ViewContainers
		return m, nil

	case "2":
		m.currentView = ViewStacks
		return m, nil

	case "3":
		m.currentView = ViewEndpoints
		return m, nil

	case "esc":
		m.currentView = ViewContainers
		return m, nil
	}

	switch m.currentView {
	case ViewContainers:
		return m.handleContainersKey(msg)
	case ViewStacks:
		return m.handleStacksKey(msg)
	case ViewEndpoints:
		return m.handleEndpointsKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	case ViewDetails:
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.backend != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.backend))
	}

	if m.currentView == ViewLogs && m.logs.follow && !m.logs.loading {
		if cmd := m.refreshLogs(); cmd != nil {
			m.logs.loading = true
			cmds = append(cmds, cmd)
		}
	}

	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.logger.Warn().Err(err).Msg("save preferences")
		m.status = statusLine{text: "save preferences: " + err.Error(), isError: true}
	}
}

// applySnapshot installs a new snapshot and keeps the cursors on the same items.
func (m *Model) applySnapshot(snap state.Snapshot) {
	m.snapshot = snap
	m.restoreContainerCursor()
	m.stackRow = clampRow(m.stackRow, len(snap.Stacks))
	m.endpointRow = clampRow(m.endpointRow, len(snap.Endpoints))
	if snap.Selected != nil {
		for i, e := range snap.Endpoints {
			if e.ID == snap.Selected.ID && m.currentView != ViewEndpoints {
				m.endpointRow = i
			}
		}
	}
}

func (m *Model) resizeViewports() {
	bodyHeight := m.bodyHeight()
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	m.logViewport.Width = m.width
	m.logViewport.Height = bodyHeight
	m.detailViewport.Width = m.width
	m.detailViewport.Height = bodyHeight
	m.attachViewport.Width = m.width
	m.attachViewport.Height = max(1, bodyHeight-1)
	m.attachInput.Width = max(1, m.width-4)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	height := max(1, m.bodyHeight())
	b.WriteString(lipgloss.NewStyle().Height(height).MaxHeight(height).Render(m.renderContent()))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewContainers:
		return m.renderContainers()
	case ViewStacks:
		return m.renderStacks()
	case ViewEndpoints:
		return m.renderEndpoints()
	case ViewLogs:
		return m.renderLogs()
	case ViewDetails:
		return m.renderDetails()
	case ViewAttach:
		return m.renderAttach()
	default:
		return ""
	}
}

// bodyHeight is the number of rows left for the content area.
func (m Model) bodyHeight() int {
	return m.height - 3 // header, command bar, footer
}

// Messages

type tickMsg time.Time

type changedMsg struct{}

type snapshotMsg struct {
	snapshot   state.Snapshot
	refreshing bool
}

type actionDoneMsg struct {
	label string
	err   error
}

type endpointSelectedMsg struct {
	err error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(b Backend) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		return snapshotMsg{snapshot: b.Snapshot(), refreshing: b.IsRefreshing()}
	}
}

// waitForChange blocks on the coordinator's change feed.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func refreshCmd(ctx context.Context, b Backend) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := b.RefreshAll(ctx)
		if err != nil {
			return actionDoneMsg{label: "refresh", err: err}
		}
		return actionDoneMsg{label: "refreshed"}
	}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	ctx := m.ctx
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
