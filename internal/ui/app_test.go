package ui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/prefs"
	"github.com/five82/berth/internal/state"
)

type stubBackend struct {
	snap        state.Snapshot
	actions     []string
	removed     []string
	stackStates map[int]bool
	selected    int
	logs        string
	detached    []string
	session     *portainer.AttachSession
}

func (s *stubBackend) Snapshot() state.Snapshot { return s.snap }

func (s *stubBackend) Subscribe() (<-chan struct{}, func()) {
	return make(chan struct{}), func() {}
}

func (s *stubBackend) IsRefreshing() bool { return false }

func (s *stubBackend) RefreshAll(context.Context) (state.Snapshot, error) { return s.snap, nil }

func (s *stubBackend) SetSelectedEndpoint(_ context.Context, e *portainer.Endpoint) (state.Snapshot, error) {
	if e != nil {
		s.selected = e.ID
	}
	return s.snap, nil
}

func (s *stubBackend) ExecuteAction(_ context.Context, action portainer.Action, id string) error {
	s.actions = append(s.actions, string(action)+" "+id)
	return nil
}

func (s *stubBackend) RemoveContainer(_ context.Context, id string, force bool) error {
	s.removed = append(s.removed, fmt.Sprintf("%s force=%t", id, force))
	return nil
}

func (s *stubBackend) SetStackState(_ context.Context, id int, started bool) error {
	if s.stackStates == nil {
		s.stackStates = make(map[int]bool)
	}
	s.stackStates[id] = started
	return nil
}

func (s *stubBackend) RemoveStack(context.Context, int) error { return nil }

func (s *stubBackend) InspectContainer(context.Context, string) (*portainer.ContainerDetails, error) {
	return &portainer.ContainerDetails{}, nil
}

func (s *stubBackend) FetchLogs(context.Context, string, portainer.LogOptions) (string, error) {
	return s.logs, nil
}

func (s *stubBackend) Attach(context.Context, string) (*portainer.AttachSession, error) {
	if s.session != nil {
		return s.session, nil
	}
	return nil, &portainer.Error{Kind: portainer.KindTransportUnreachable}
}

func (s *stubBackend) Detach(id string) { s.detached = append(s.detached, id) }

func testSnapshot() state.Snapshot {
	ep := portainer.Endpoint{ID: 1, Name: "local", Status: portainer.EndpointStatusUp}
	return state.Snapshot{
		Endpoints: []portainer.Endpoint{ep, {ID: 2, Name: "edge"}},
		Selected:  &ep,
		Containers: []portainer.Container{
			{ID: "c1", Names: []string{"/web"}, State: portainer.StateRunning, Image: "nginx"},
			{ID: "c2", Names: []string{"/db"}, State: portainer.StatePaused, Image: "postgres"},
			{ID: "c3", Names: []string{"/job"}, State: portainer.StateExited, Image: "busybox"},
		},
		Stacks: []portainer.Stack{
			{ID: 7, Name: "shop", Status: portainer.StackStatusInactive, EndpointID: 1},
		},
	}
}

func newTestModel(t *testing.T, b *stubBackend) Model {
	t.Helper()
	m := New(Options{
		Backend:   b,
		Prefs:     prefs.Defaults(),
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(Model)
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var updated tea.Model
		updated, cmd = m.Update(keyMsg(k))
		m = updated.(Model)
	}
	return m, cmd
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

func TestPauseKeyTogglesByState(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	m, cmd := press(t, m, "p")
	if cmd == nil {
		t.Fatal("expected a command for pause")
	}
	cmd()
	m, cmd = press(t, m, "j", "p")
	if cmd == nil {
		t.Fatal("expected a command for unpause")
	}
	cmd()

	want := []string{"pause c1", "unpause c2"}
	if strings.Join(b.actions, ",") != strings.Join(want, ",") {
		t.Fatalf("actions = %v, want %v", b.actions, want)
	}
	if m.selectedKey != "c2" {
		t.Fatalf("selectedKey = %q, want c2", m.selectedKey)
	}
}

func TestRemoveForcesActiveContainers(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	_, cmd := press(t, m, "D")
	cmd()
	_, cmd = press(t, m, "G", "D")
	cmd()

	want := []string{"c1 force=true", "c3 force=false"}
	if strings.Join(b.removed, ",") != strings.Join(want, ",") {
		t.Fatalf("removed = %v, want %v", b.removed, want)
	}
}

func TestActionResultShownInFooter(t *testing.T) {
	m := newTestModel(t, &stubBackend{snap: testSnapshot()})
	updated, _ := m.Update(actionDoneMsg{label: "stop web", err: &portainer.Error{Kind: portainer.KindServerRejected, StatusCode: 500}})
	m = updated.(Model)
	if !m.status.isError || !strings.Contains(m.status.text, "status 500") {
		t.Fatalf("status = %+v, want server error", m.status)
	}
}

func TestCursorFollowsRecreatedContainer(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)
	m, _ = press(t, m, "j")
	if m.selectedKey != "c2" {
		t.Fatalf("selectedKey = %q, want c2", m.selectedKey)
	}

	next := testSnapshot()
	next.Containers = []portainer.Container{
		{ID: "c9", Names: []string{"/db"}, State: portainer.StateRunning},
		{ID: "c1", Names: []string{"/web"}, State: portainer.StateRunning},
	}
	next.ContainerKeys = map[string]string{"c9": "c2"}
	updated, _ := m.Update(snapshotMsg{snapshot: next})
	m = updated.(Model)

	if m.selectedRow != 0 {
		t.Fatalf("selectedRow = %d, want 0", m.selectedRow)
	}
	if c, ok := m.selectedContainer(); !ok || c.ID != "c9" {
		t.Fatalf("selected container = %+v, want c9", c)
	}
}

func TestShowStoppedTogglePersists(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	m, _ = press(t, m, "f")
	if got := len(m.visibleContainers()); got != 2 {
		t.Fatalf("visible containers = %d, want 2", got)
	}
	p, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ShowStopped {
		t.Fatal("ShowStopped was not persisted")
	}
}

func TestThemeCyclePersists(t *testing.T) {
	m := newTestModel(t, &stubBackend{snap: testSnapshot()})
	m, _ = press(t, m, "T")
	if m.theme.Name != "Kanagawa" {
		t.Fatalf("theme = %q, want Kanagawa", m.theme.Name)
	}
	p, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Theme != "Kanagawa" {
		t.Fatalf("saved theme = %q, want Kanagawa", p.Theme)
	}
}

func TestEndpointSelection(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	m, cmd := press(t, m, "3", "j", "enter")
	if cmd == nil {
		t.Fatal("expected a selection command")
	}
	msg := cmd()
	if b.selected != 2 {
		t.Fatalf("selected endpoint = %d, want 2", b.selected)
	}
	updated, _ := m.Update(msg)
	if got := updated.(Model).currentView; got != ViewContainers {
		t.Fatalf("view = %v, want Containers", got)
	}
}

func TestStackEnterTogglesState(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	_, cmd := press(t, m, "2", "enter")
	if cmd == nil {
		t.Fatal("expected a stack command")
	}
	cmd()
	if started, ok := b.stackStates[7]; !ok || !started {
		t.Fatalf("stack states = %v, want 7 started", b.stackStates)
	}
}

func TestStackStateLabelPrefersMarkers(t *testing.T) {
	snap := testSnapshot()
	snap.LoadingStacks = map[int]bool{7: true}
	m := newTestModel(t, &stubBackend{snap: snap})
	if got := m.stackStateLabel(snap.Stacks[0]); got != "loading" {
		t.Fatalf("label = %q, want loading", got)
	}
	m.snapshot.RemovingStacks = map[int]bool{7: true}
	if got := m.stackStateLabel(snap.Stacks[0]); got != "removing" {
		t.Fatalf("label = %q, want removing", got)
	}
}

func TestLogsForOtherContainerIgnored(t *testing.T) {
	b := &stubBackend{snap: testSnapshot(), logs: "one\ntwo\nthree\n"}
	m := newTestModel(t, b)

	m, cmd := press(t, m, "l")
	if m.currentView != ViewLogs {
		t.Fatalf("view = %v, want Logs", m.currentView)
	}

	updated, _ := m.Update(logsMsg{containerID: "c2", lines: []string{"stale"}})
	m = updated.(Model)
	if len(m.logs.lines) != 0 {
		t.Fatalf("stale logs applied: %v", m.logs.lines)
	}

	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if got := strings.Join(m.logs.lines, ","); got != "one,two,three" {
		t.Fatalf("lines = %q, want one,two,three", got)
	}
	if m.logs.loading {
		t.Fatal("loading flag not cleared")
	}
}

func TestAttachFailureShown(t *testing.T) {
	b := &stubBackend{snap: testSnapshot()}
	m := newTestModel(t, b)

	m, _ = press(t, m, "a")
	if m.currentView != ViewAttach {
		t.Fatalf("view = %v, want Attach", m.currentView)
	}
	msg := attachCmd(m.ctx, b, "c1")()
	updated, _ := m.Update(msg)
	m = updated.(Model)
	if !m.attach.closed || m.attach.err == nil {
		t.Fatalf("attach state = %+v, want closed with error", m.attach)
	}

	// Keys typed in the attach view go to the input, not the container table.
	m, _ = press(t, m, "q")
	if m.currentView != ViewAttach {
		t.Fatal("q left the attach view")
	}
	m, _ = press(t, m, "esc")
	if m.currentView != ViewContainers {
		t.Fatalf("view = %v, want Containers", m.currentView)
	}
}

func TestViewRendersContainers(t *testing.T) {
	m := newTestModel(t, &stubBackend{snap: testSnapshot()})
	out := m.View()
	for _, want := range []string{"berth", "local", "web", "db", "nginx", "1/3 running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("View() missing %q", want)
		}
	}
}

func TestMoveCursor(t *testing.T) {
	tests := []struct {
		key        string
		row, count int
		want       int
		ok         bool
	}{
		{"j", 0, 3, 1, true},
		{"j", 2, 3, 2, true},
		{"k", 0, 3, 0, true},
		{"G", 0, 3, 2, true},
		{"g", 2, 3, 0, true},
		{"ctrl+d", 0, 50, 10, true},
		{"x", 1, 3, 1, false},
	}
	for _, tt := range tests {
		got, ok := moveCursor(tt.key, tt.row, tt.count, 10)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("moveCursor(%q, %d, %d) = %d,%t want %d,%t", tt.key, tt.row, tt.count, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWindowRange(t *testing.T) {
	if s, e := windowRange(0, 5, 10); s != 0 || e != 5 {
		t.Fatalf("short list = %d,%d", s, e)
	}
	if s, e := windowRange(12, 20, 5); s != 8 || e != 13 {
		t.Fatalf("scrolled = %d,%d, want 8,13", s, e)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q, want abc…", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := padRight("ab", 4); got != "ab  " {
		t.Fatalf("padRight = %q", got)
	}
}

func TestAttachShowsEarlierOutputOnce(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello\n"))
		if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != "more\n" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("world"))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	client := portainer.NewClient(portainer.WithDialer(&websocket.Dialer{HandshakeTimeout: 2 * time.Second}))
	if err := client.Configure(server.URL, "jwt"); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	session, err := client.Attach(context.Background(), "c1", 1)
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	t.Cleanup(session.Disconnect)

	deadline := time.Now().Add(3 * time.Second)
	for session.Output() != "hello\n" {
		if time.Now().After(deadline) {
			t.Fatalf("Output = %q, want greeting", session.Output())
		}
		time.Sleep(5 * time.Millisecond)
	}

	b := &stubBackend{snap: testSnapshot(), session: session}
	m := newTestModel(t, b)
	m, _ = press(t, m, "a")
	updated, cmd := m.Update(attachCmd(m.ctx, b, "c1")())
	m = updated.(Model)
	if m.attach.output != "hello\n" {
		t.Fatalf("output after open = %q", m.attach.output)
	}

	if err := session.Send("more\n"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	for i := 0; cmd != nil && i < 10; i++ {
		updated, cmd = m.Update(cmd())
		m = updated.(Model)
	}
	if m.attach.output != "hello\nworld" {
		t.Fatalf("output = %q, want each message once", m.attach.output)
	}
	if !m.attach.closed || m.attach.err != nil {
		t.Fatalf("attach state = %+v, want closed normally", m.attach)
	}
}
