package portainer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SessionState is the lifecycle of an attach session.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AttachEvent is delivered to subscribers. Data events carry output; the final
// event has Closed set and Err non-nil when the session ended abnormally.
type AttachEvent struct {
	Data   string
	Closed bool
	Err    error
}

const closeWriteWait = time.Second

// AttachSession mirrors the I/O of a container's main process over a websocket.
type AttachSession struct {
	id          string
	containerID string
	endpointID  int
	logger      zerolog.Logger

	mu           sync.Mutex
	writeMu      sync.Mutex
	conn         *websocket.Conn
	state        SessionState
	err          error
	buf          strings.Builder
	subs         map[int]*subscriber
	nextSub      int
	onDisconnect func()
	disconnected bool
	done         chan struct{}
}

// Attach opens a streaming session to a container. The returned session is
// already Open; its receive loop runs until Disconnect or the remote closes.
func (c *Client) Attach(ctx context.Context, containerID string, endpointID int) (*AttachSession, error) {
	base, token, err := c.settings(true)
	if err != nil {
		return nil, err
	}
	rel, err := attachPath(containerID, endpointID, token)
	if err != nil {
		return nil, err
	}
	wsURL := resolve(base, rel)
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	s := newAttachSession(containerID, endpointID, c.logger)

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		mapped := dialError(ctx, resp, err)
		s.finish(mapped)
		return nil, mapped
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	s.start(conn)
	return s, nil
}

// dialError classifies a failed handshake using the HTTP response when there is one.
func dialError(ctx context.Context, resp *http.Response, err error) *Error {
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return classifyResponse(resp.StatusCode, body)
	}
	return transportError(ctx, err)
}

func newAttachSession(containerID string, endpointID int, logger zerolog.Logger) *AttachSession {
	id := uuid.NewString()
	return &AttachSession{
		id:          id,
		containerID: containerID,
		endpointID:  endpointID,
		logger:      logger.With().Str("session", id).Str("container", containerID).Logger(),
		state:       SessionConnecting,
		subs:        make(map[int]*subscriber),
		done:        make(chan struct{}),
	}
}

func (s *AttachSession) start(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.state = SessionOpen
	s.mu.Unlock()
	s.logger.Debug().Msg("attach session open")
	go s.receive()
}

// receive is the only reader of the connection. It runs until a read fails.
func (s *AttachSession) receive() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.state == SessionClosing
			s.mu.Unlock()
			if closing || isNormalClose(err) {
				s.finish(nil)
			} else {
				s.finish(classifyStreamError(err))
			}
			return
		}
		s.publish(string(data))
	}
}

func classifyStreamError(err error) *Error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return &Error{Kind: KindApplicationError, Message: closeErr.Text, StatusCode: closeErr.Code, Err: err}
	}
	return &Error{Kind: KindTransportUnreachable, Err: err}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, io.EOF)
}

func (s *AttachSession) publish(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	s.buf.WriteString(data)
	ev := AttachEvent{Data: data}
	for _, sub := range s.subs {
		sub.push(ev)
	}
}

// finish moves the session to Closed exactly once, queues the terminal event
// for every subscriber and fires the disconnect callback.
func (s *AttachSession) finish(err *Error) {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	if err != nil {
		s.err = err
	}
	terminal := AttachEvent{Closed: true}
	if s.err != nil {
		terminal.Err = s.err
	}
	for id, sub := range s.subs {
		sub.push(terminal)
		delete(s.subs, id)
	}
	callback := s.onDisconnect
	fire := !s.disconnected && callback != nil
	s.disconnected = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("attach session closed with error")
	} else {
		s.logger.Debug().Msg("attach session closed")
	}
	close(s.done)
	if fire {
		callback()
	}
}

// Disconnect closes the session normally and waits for the receive loop to end.
func (s *AttachSession) Disconnect() {
	s.mu.Lock()
	switch s.state {
	case SessionClosed:
		s.mu.Unlock()
		return
	case SessionConnecting:
		s.mu.Unlock()
		s.finish(nil)
		return
	}
	s.state = SessionClosing
	conn := s.conn
	s.mu.Unlock()

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	s.writeMu.Unlock()

	select {
	case <-s.done:
	case <-time.After(closeWriteWait):
		// The peer did not echo the close frame; closing the socket unblocks the reader.
		_ = conn.Close()
		<-s.done
	}
}

// Send writes input to the attached process.
func (s *AttachSession) Send(data string) error {
	s.mu.Lock()
	state := s.state
	conn := s.conn
	s.mu.Unlock()
	if state != SessionOpen {
		return &Error{Kind: KindTransportUnreachable, Message: "attach session is " + state.String()}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		return &Error{Kind: KindTransportUnreachable, Err: err}
	}
	return nil
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Subscribing to a closed session yields only the terminal event.
func (s *AttachSession) Subscribe() (<-chan AttachEvent, func()) {
	_, events, cancel := s.SubscribeWithOutput()
	return events, cancel
}

// SubscribeWithOutput returns the output received so far together with a
// subscription that starts right after it, so no message is seen twice or missed.
func (s *AttachSession) SubscribeWithOutput() (string, <-chan AttachEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	output := s.buf.String()
	if s.state == SessionClosed {
		ch := make(chan AttachEvent, 1)
		ch <- AttachEvent{Closed: true, Err: s.err}
		close(ch)
		return output, ch, func() {}
	}
	sub := newSubscriber()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	return output, sub.out, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.cancel()
	}
}

// OnDisconnect registers fn to run once when the session reaches Closed.
func (s *AttachSession) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// ID is a unique identifier for log correlation.
func (s *AttachSession) ID() string { return s.id }

// ContainerID returns the attached container.
func (s *AttachSession) ContainerID() string { return s.containerID }

// State returns the current lifecycle state.
func (s *AttachSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error; nil while open and after a normal close.
func (s *AttachSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Output returns all text received so far.
func (s *AttachSession) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Done is closed once the session reaches Closed.
func (s *AttachSession) Done() <-chan struct{} { return s.done }

// subscriber queues events without bound and feeds them to out in order, so a
// slow reader delays its own delivery but never loses output.
type subscriber struct {
	out  chan AttachEvent
	wake chan struct{}
	stop chan struct{}
	once sync.Once

	mu    sync.Mutex
	queue []AttachEvent
}

func newSubscriber() *subscriber {
	sub := &subscriber{
		out:  make(chan AttachEvent),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go sub.pump()
	return sub
}

func (sub *subscriber) push(ev AttachEvent) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) cancel() {
	sub.once.Do(func() { close(sub.stop) })
}

// pump closes out after delivering the terminal event or on cancel.
func (sub *subscriber) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.stop:
				return
			}
		}
		ev := sub.queue[0]
		sub.queue[0] = AttachEvent{}
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- ev:
		case <-sub.stop:
			return
		}
		if ev.Closed {
			return
		}
	}
}
