package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/berth/internal/cache"
	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/secrets"
)

// API is the subset of the portainer client the coordinator drives.
type API interface {
	ServerURL() string
	Configure(serverURL, token string) error
	Reset()
	Login(ctx context.Context, username, password string) (string, error)
	FetchEndpoints(ctx context.Context) ([]portainer.Endpoint, error)
	FetchContainers(ctx context.Context, endpointID int, filters portainer.Filters) ([]portainer.Container, error)
	InspectContainer(ctx context.Context, containerID string, endpointID int) (*portainer.ContainerDetails, error)
	FetchLogs(ctx context.Context, containerID string, endpointID int, opts portainer.LogOptions) (string, error)
	ExecuteAction(ctx context.Context, action portainer.Action, containerID string, endpointID int) error
	RemoveContainer(ctx context.Context, containerID string, endpointID int, force bool) error
	FetchStacks(ctx context.Context, endpointID *int) ([]portainer.Stack, error)
	SetStackState(ctx context.Context, stackID, endpointID int, started bool) (*portainer.Stack, error)
	DeleteStack(ctx context.Context, stackID, endpointID int) error
	Attach(ctx context.Context, containerID string, endpointID int) (*portainer.AttachSession, error)
}

var _ API = (*portainer.Client)(nil)

// DefaultGraceDelay is how long transient removing/loading markers outlive the call.
const DefaultGraceDelay = time.Second

// Options configures a Coordinator.
type Options struct {
	API     API
	Cache   cache.Cache
	Secrets secrets.Store
	Logger  zerolog.Logger

	// Username and Password enable silent re-authentication.
	Username string
	Password string

	// PreferredEndpointID is selected when no persisted selection exists.
	PreferredEndpointID int
	GraceDelay          time.Duration
}

type laneKind int

const (
	laneEndpoints laneKind = iota
	laneContainers
	laneContainersByID
	laneStacks
	laneCount
)

func (k laneKind) String() string {
	switch k {
	case laneEndpoints:
		return "endpoints"
	case laneContainers:
		return "containers"
	case laneContainersByID:
		return "containers-by-id"
	case laneStacks:
		return "stacks"
	default:
		return "unknown"
	}
}

// lane tracks the single in-flight task of one resource kind. gen increases
// every time a task starts or is superseded; a task commits only if gen still
// matches the value it started with.
type lane struct {
	cancel context.CancelFunc
	gen    uint64
}

// Coordinator owns the snapshot and is its only writer.
type Coordinator struct {
	api      API
	cache    cache.Cache
	secrets  secrets.Store
	logger   zerolog.Logger
	username string
	password string
	grace    time.Duration

	mu                sync.Mutex
	snap              Snapshot
	lanes             [laneCount]lane
	persistedEndpoint int

	// Outstanding grace timers per marker; a marker clears with its last timer.
	removingContainers pendingMarks[string]
	removingStacks     pendingMarks[int]
	loadingStacks      pendingMarks[int]

	attachMu sync.Mutex
	sessions map[string]*portainer.AttachSession

	subsMu  sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// New builds a coordinator. Cache and Secrets default to in-memory stores.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		api:                opts.API,
		cache:              opts.Cache,
		secrets:            opts.Secrets,
		logger:             opts.Logger.With().Str("component", "coordinator").Logger(),
		username:           opts.Username,
		password:           opts.Password,
		grace:              opts.GraceDelay,
		snap:               emptySnapshot(),
		persistedEndpoint:  opts.PreferredEndpointID,
		sessions:           make(map[string]*portainer.AttachSession),
		removingContainers: make(pendingMarks[string]),
		removingStacks:     make(pendingMarks[int]),
		loadingStacks:      make(pendingMarks[int]),
		subs:               make(map[int]chan struct{}),
	}
	if c.cache == nil {
		c.cache = cache.NewMemory()
	}
	if c.secrets == nil {
		c.secrets = secrets.NewMemory()
	}
	if c.grace <= 0 {
		c.grace = DefaultGraceDelay
	}
	return c
}

// Snapshot returns a deep copy of the current snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// IsRefreshing reports whether any lane has an outstanding task.
func (c *Coordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lanes {
		if l.cancel != nil {
			return true
		}
	}
	return false
}

// Subscribe returns a channel that receives a value after snapshot changes.
// Bursts of changes coalesce into one notification.
func (c *Coordinator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Coordinator) notify() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin supersedes the lane's current task and starts a new one.
func (c *Coordinator) begin(ctx context.Context, k laneKind) (context.Context, context.CancelFunc, uint64) {
	taskCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	l := &c.lanes[k]
	if l.cancel != nil {
		l.cancel()
		c.logger.Debug().Stringer("lane", k).Msg("superseding in-flight refresh")
	}
	l.gen++
	l.cancel = cancel
	gen := l.gen
	c.mu.Unlock()
	c.notify()
	return taskCtx, cancel, gen
}

// endLocked releases the lane if gen is still current and reports whether it was.
func (c *Coordinator) endLocked(k laneKind, gen uint64) bool {
	l := &c.lanes[k]
	if l.gen != gen {
		return false
	}
	l.cancel = nil
	return true
}

// cancelLaneLocked cancels the lane's task so its result is never merged.
func (c *Coordinator) cancelLaneLocked(k laneKind) {
	l := &c.lanes[k]
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}

// abandoned reports whether a finished task must not touch the snapshot.
func abandoned(current bool, taskCtx context.Context, err error) bool {
	if !current || portainer.IsCancelled(err) {
		return true
	}
	return err == nil && taskCtx.Err() != nil
}

func (c *Coordinator) recordFailureLocked(err error) {
	c.snap.LastError = err
	c.snap.LastUpdated = time.Now()
	c.snap.ConsecutiveFailures++
}

func (c *Coordinator) recordSuccessLocked() {
	c.snap.LastError = nil
	c.snap.LastUpdated = time.Now()
	c.snap.ConsecutiveFailures = 0
}

// withAuth runs call and, when it fails as Unauthenticated, drops the saved
// token, tries one silent login and retries once. When that is impossible or
// fails the coordinator enters the logged-out state.
func (c *Coordinator) withAuth(ctx context.Context, call func(context.Context) error) error {
	err := call(ctx)
	if !errors.Is(err, portainer.ErrUnauthenticated) {
		return err
	}

	server := c.api.ServerURL()
	c.logger.Warn().Str("server", server).Msg("token rejected")
	if server != "" {
		if rmErr := c.secrets.RemoveToken(server); rmErr != nil {
			c.logger.Warn().Err(rmErr).Msg("remove saved token")
		}
	}

	if server != "" && c.username != "" && c.password != "" {
		if retryErr := c.reauthenticate(ctx, server); retryErr == nil {
			err = call(ctx)
			if !errors.Is(err, portainer.ErrUnauthenticated) {
				return err
			}
		} else {
			c.logger.Warn().Err(retryErr).Msg("silent re-authentication failed")
			if portainer.IsCancelled(retryErr) {
				return retryErr
			}
		}
	}

	c.enterLoggedOut()
	return err
}

func (c *Coordinator) reauthenticate(ctx context.Context, server string) error {
	token, err := c.api.Login(ctx, c.username, c.password)
	if err != nil {
		return err
	}
	if err := c.api.Configure(server, token); err != nil {
		return err
	}
	if err := c.secrets.SetToken(server, token); err != nil {
		c.logger.Warn().Err(err).Msg("save token")
	}
	c.logger.Info().Str("server", server).Msg("re-authenticated")
	return nil
}

// enterLoggedOut clears the client and snapshot. In-flight tasks are
// cancelled without bumping their generation so the failing caller still
// reports its own error.
func (c *Coordinator) enterLoggedOut() {
	c.api.Reset()
	c.mu.Lock()
	for i := range c.lanes {
		if c.lanes[i].cancel != nil {
			c.lanes[i].cancel()
		}
	}
	c.clearDataLocked()
	c.snap.LoggedOut = true
	c.mu.Unlock()
	c.disconnectAll()
	c.notify()
	c.logger.Info().Msg("logged out")
}

func (c *Coordinator) clearDataLocked() {
	fresh := emptySnapshot()
	fresh.LastError = c.snap.LastError
	fresh.ConsecutiveFailures = c.snap.ConsecutiveFailures
	fresh.LastUpdated = c.snap.LastUpdated
	c.snap = fresh
}

// Connect configures the client for serverURL using the saved token, or logs
// in with the configured credentials when no token is saved. Tokens are keyed
// by the URL as the client normalizes it.
func (c *Coordinator) Connect(ctx context.Context, serverURL string) error {
	if err := c.api.Configure(serverURL, ""); err != nil {
		c.setLoggedOut(true)
		return err
	}
	server := c.api.ServerURL()
	token, ok, err := c.secrets.Token(server)
	if err != nil {
		c.logger.Warn().Err(err).Msg("read saved token")
	}
	if !ok {
		if c.username == "" || c.password == "" {
			c.setLoggedOut(true)
			return &portainer.Error{Kind: portainer.KindNotConfigured, Message: "no saved token for " + server}
		}
		token, err = c.api.Login(ctx, c.username, c.password)
		if err != nil {
			c.setLoggedOut(true)
			return err
		}
		if err := c.secrets.SetToken(server, token); err != nil {
			c.logger.Warn().Err(err).Msg("save token")
		}
	}
	if err := c.api.Configure(server, token); err != nil {
		return err
	}
	c.setLoggedOut(false)
	return nil
}

func (c *Coordinator) setLoggedOut(v bool) {
	c.mu.Lock()
	c.snap.LoggedOut = v
	c.mu.Unlock()
	c.notify()
}

// Logout forgets the token and every piece of cached state.
func (c *Coordinator) Logout() {
	server := c.api.ServerURL()
	c.reset()
	if server != "" {
		if err := c.secrets.RemoveToken(server); err != nil {
			c.logger.Warn().Err(err).Msg("remove saved token")
		}
	}
	c.mu.Lock()
	c.snap.LoggedOut = true
	c.mu.Unlock()
	c.notify()
}

// SwitchServer discards all state and connects to serverURL. An empty token
// falls back to the saved one or to a silent login.
func (c *Coordinator) SwitchServer(ctx context.Context, serverURL, token string) error {
	c.reset()
	if token == "" {
		return c.Connect(ctx, serverURL)
	}
	if err := c.api.Configure(serverURL, token); err != nil {
		c.setLoggedOut(true)
		return err
	}
	if err := c.secrets.SetToken(c.api.ServerURL(), token); err != nil {
		c.logger.Warn().Err(err).Msg("save token")
	}
	c.setLoggedOut(false)
	return nil
}

func (c *Coordinator) reset() {
	c.api.Reset()
	c.mu.Lock()
	for k := range c.lanes {
		c.cancelLaneLocked(laneKind(k))
	}
	c.snap = emptySnapshot()
	c.persistedEndpoint = 0
	c.mu.Unlock()
	c.disconnectAll()
	c.clearCache()
	c.notify()
}
