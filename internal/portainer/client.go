package portainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/five82/berth/internal/logtail"
)

// Client talks to the Portainer HTTP API. It may be constructed unconfigured;
// every operation then fails with NotConfigured before touching the network.
type Client struct {
	mu      sync.RWMutex
	baseURL *url.URL
	token   string

	http      *http.Client
	dialer    *websocket.Dialer
	userAgent string
	validate  *validator.Validate
	logger    zerolog.Logger
}

const (
	defaultUserAgent = "berth/0.1"
	requestTimeout   = 15 * time.Second
	// Access tokens minted by the server carry this prefix; anything else is a JWT.
	accessTokenPrefix = "ptr_"
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithDialer replaces the websocket dialer used by Attach.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "portainer").Logger() }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds an unconfigured Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: requestTimeout},
		dialer:    &websocket.Dialer{HandshakeTimeout: requestTimeout, Proxy: http.ProxyFromEnvironment},
		userAgent: defaultUserAgent,
		validate:  validator.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure sets the server URL and token. It performs no I/O and calling it
// again with the same arguments changes nothing.
func (c *Client) Configure(serverURL, token string) error {
	base, err := parseBaseURL(serverURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = base
	c.token = strings.TrimSpace(token)
	return nil
}

// Reset forgets the server URL and token.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = nil
	c.token = ""
}

// ServerURL returns the configured server URL, or "" when unconfigured.
func (c *Client) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

// Configured reports whether both URL and token are set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL != nil && c.token != ""
}

func (c *Client) settings(needToken bool) (*url.URL, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.baseURL == nil {
		return nil, "", &Error{Kind: KindNotConfigured, Message: "server url not set"}
	}
	if needToken && c.token == "" {
		return nil, "", &Error{Kind: KindNotConfigured, Message: "token not set"}
	}
	base := *c.baseURL
	return &base, c.token, nil
}

// Login exchanges credentials for a JWT. It needs a URL but no token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	payload := authRequest{Username: username, Password: password}
	if err := c.validate.Struct(payload); err != nil {
		return "", &Error{Kind: KindMalformedPayload, Err: err}
	}
	var resp authResponse
	if err := c.doJSON(ctx, request{method: http.MethodPost, rel: loginPath(), body: payload}, &resp); err != nil {
		return "", err
	}
	if resp.JWT == "" {
		return "", &Error{Kind: KindDecodingFailed, Message: "empty jwt in auth response"}
	}
	return resp.JWT, nil
}

// FetchEndpoints lists the endpoints visible to the token.
func (c *Client) FetchEndpoints(ctx context.Context) ([]Endpoint, error) {
	var payload []Endpoint
	if err := c.doJSON(ctx, request{method: http.MethodGet, rel: listEndpointsPath(), auth: true}, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchContainers lists all containers of an endpoint, stopped ones included.
func (c *Client) FetchContainers(ctx context.Context, endpointID int, filters Filters) ([]Container, error) {
	rel, err := listContainersPath(endpointID, filters)
	if err != nil {
		return nil, err
	}
	var payload []Container
	if err := c.doJSON(ctx, request{method: http.MethodGet, rel: rel, auth: true}, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// InspectContainer fetches the detailed record of one container.
func (c *Client) InspectContainer(ctx context.Context, containerID string, endpointID int) (*ContainerDetails, error) {
	rel, err := inspectContainerPath(containerID, endpointID)
	if err != nil {
		return nil, err
	}
	var payload ContainerDetails
	if err := c.doJSON(ctx, request{method: http.MethodGet, rel: rel, auth: true}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ExecuteAction posts a lifecycle action. Any status from 200 through 304
// counts as success (Docker answers 304 when the container is already there).
func (c *Client) ExecuteAction(ctx context.Context, action Action, containerID string, endpointID int) error {
	rel, err := executeActionPath(containerID, endpointID, action)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, request{
		method:  http.MethodPost,
		rel:     rel,
		body:    struct{}{},
		auth:    true,
		success: actionSuccess,
	})
	return err
}

// RemoveContainer deletes a container.
func (c *Client) RemoveContainer(ctx context.Context, containerID string, endpointID int, force bool) error {
	rel, err := removeContainerPath(containerID, endpointID, force)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, request{method: http.MethodDelete, rel: rel, auth: true, success: actionSuccess})
	return err
}

// FetchLogs returns the raw log text of a container.
func (c *Client) FetchLogs(ctx context.Context, containerID string, endpointID int, opts LogOptions) (string, error) {
	rel, err := fetchLogsPath(containerID, endpointID, opts)
	if err != nil {
		return "", err
	}
	resp, err := c.send(ctx, request{method: http.MethodGet, rel: rel, auth: true, accept: "text/plain"})
	if err != nil {
		return "", err
	}
	return decodeLogText(resp.body)
}

// decodeLogText accepts UTF-8 as is. Non-TTY containers frame their output
// with binary stream headers, so invalid input is demultiplexed and retried.
func decodeLogText(body []byte) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	if payload, ok := logtail.Demux(body); ok && utf8.Valid(payload) {
		return string(payload), nil
	}
	return "", &Error{Kind: KindDecodingFailed, Message: "log output is neither utf-8 nor a docker stream"}
}

// FetchStacks lists stacks, optionally restricted to one endpoint.
func (c *Client) FetchStacks(ctx context.Context, endpointID *int) ([]Stack, error) {
	rel, err := listStacksPath(endpointID)
	if err != nil {
		return nil, err
	}
	var payload []Stack
	if err := c.doJSON(ctx, request{method: http.MethodGet, rel: rel, auth: true}, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchStack retrieves one stack by id.
func (c *Client) FetchStack(ctx context.Context, stackID int) (*Stack, error) {
	rel, err := getStackPath(stackID)
	if err != nil {
		return nil, err
	}
	var payload Stack
	if err := c.doJSON(ctx, request{method: http.MethodGet, rel: rel, auth: true}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SetStackState starts or stops a stack. The returned stack is nil when the
// server answers with an empty body.
func (c *Client) SetStackState(ctx context.Context, stackID, endpointID int, started bool) (*Stack, error) {
	rel, err := setStackStatePath(stackID, started, endpointID)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, request{method: http.MethodPost, rel: rel, body: struct{}{}, auth: true})
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}
	if e := embeddedError(resp.status, trimmed); e != nil {
		return nil, e
	}
	var payload Stack
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, classifyDecode(resp.status, resp.body, err)
	}
	return &payload, nil
}

// CreateStack deploys a stack from file content.
func (c *Client) CreateStack(ctx context.Context, req CreateStackRequest) (*Stack, error) {
	if err := c.checkStackPayload(req, req.StackFileContent); err != nil {
		return nil, err
	}
	rel, err := createStackPath(req.EndpointID, req.Type)
	if err != nil {
		return nil, err
	}
	var payload Stack
	if err := c.doJSON(ctx, request{method: http.MethodPost, rel: rel, body: req, auth: true}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UpdateStack replaces a stack's file content and environment.
func (c *Client) UpdateStack(ctx context.Context, stackID, endpointID int, req UpdateStackRequest) (*Stack, error) {
	if err := c.checkStackPayload(req, req.StackFileContent); err != nil {
		return nil, err
	}
	rel, err := updateStackPath(stackID, endpointID)
	if err != nil {
		return nil, err
	}
	var payload Stack
	if err := c.doJSON(ctx, request{method: http.MethodPut, rel: rel, body: req, auth: true}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DeleteStack removes a stack and its resources.
func (c *Client) DeleteStack(ctx context.Context, stackID, endpointID int) error {
	rel, err := deleteStackPath(stackID, endpointID)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, request{method: http.MethodDelete, rel: rel, auth: true, success: actionSuccess})
	return err
}

func (c *Client) checkStackPayload(req any, content string) error {
	if err := c.validate.Struct(req); err != nil {
		return &Error{Kind: KindMalformedPayload, Err: err}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return &Error{Kind: KindMalformedPayload, Message: "stack file is not valid yaml", Err: err}
	}
	return nil
}

type request struct {
	method  string
	rel     *url.URL
	body    any
	auth    bool
	accept  string
	success func(status int) bool
}

type response struct {
	status int
	body   []byte
}

func defaultSuccess(status int) bool { return status >= 200 && status < 300 }

func actionSuccess(status int) bool { return status >= 200 && status <= 304 }

func (c *Client) doJSON(ctx context.Context, req request, dest any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if e := embeddedError(resp.status, resp.body); e != nil {
		return e
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return classifyDecode(resp.status, resp.body, err)
	}
	return nil
}

// send executes req and funnels every failure through the error taxonomy.
func (c *Client) send(ctx context.Context, req request) (response, error) {
	base, token, err := c.settings(req.auth)
	if err != nil {
		return response{}, err
	}

	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return response{}, &Error{Kind: KindMalformedPayload, Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	reqURL := resolve(base, req.rel)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL.String(), body)
	if err != nil {
		return response{}, invalidParams("create request: %v", err)
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.auth {
		setAuthHeader(httpReq.Header, token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug().Str("method", req.method).Str("path", req.rel.Path).Err(err).Msg("request failed")
		return response{}, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, transportError(ctx, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug().
		Str("method", req.method).
		Str("path", req.rel.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	success := req.success
	if success == nil {
		success = defaultSuccess
	}
	if !success(resp.StatusCode) {
		return response{}, classifyResponse(resp.StatusCode, data)
	}
	return response{status: resp.StatusCode, body: data}, nil
}

func setAuthHeader(h http.Header, token string) {
	if strings.HasPrefix(token, accessTokenPrefix) {
		h.Set("X-API-Key", token)
		return
	}
	h.Set("Authorization", "Bearer "+token)
}

// resolve appends rel to the base path so servers mounted under a sub-path work.
func resolve(base *url.URL, rel *url.URL) *url.URL {
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + rel.Path
	u.RawPath = ""
	u.RawQuery = rel.RawQuery
	return &u
}

func parseBaseURL(serverURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		return nil, invalidParams("server url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, invalidParams("parse server url %q: %v", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidParams("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, invalidParams("server url %q has no host", serverURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// transportError prefers the caller's cancellation over whatever the
// transport reported while unwinding.
func transportError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindCancelled, Err: ctx.Err()}
	}
	return classifyTransport(err)
}
