package state

import (
	"context"

	"github.com/five82/berth/internal/portainer"
)

// Attach returns the live session of a container, opening one if needed.
// At most one session exists per container.
func (c *Coordinator) Attach(ctx context.Context, containerID string) (*portainer.AttachSession, error) {
	if s, ok := c.Session(containerID); ok {
		return s, nil
	}

	endpointID, err := c.requireEndpoint()
	if err != nil {
		return nil, err
	}
	var session *portainer.AttachSession
	err = c.withAuth(ctx, func(ctx context.Context) error {
		var err error
		session, err = c.api.Attach(ctx, containerID, endpointID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.attachMu.Lock()
	if existing, ok := c.sessions[containerID]; ok && existing.State() != portainer.SessionClosed {
		// Lost a race with a concurrent Attach for the same container.
		c.attachMu.Unlock()
		session.Disconnect()
		return existing, nil
	}
	c.sessions[containerID] = session
	c.mu.Lock()
	c.snap.Attached[containerID] = true
	c.mu.Unlock()
	c.attachMu.Unlock()

	session.OnDisconnect(func() { c.forgetSession(containerID, session) })
	if session.State() == portainer.SessionClosed {
		c.forgetSession(containerID, session)
	}
	c.logger.Info().Str("container", containerID).Str("session", session.ID()).Msg("attached")
	c.notify()
	return session, nil
}

func (c *Coordinator) forgetSession(containerID string, session *portainer.AttachSession) {
	c.attachMu.Lock()
	if c.sessions[containerID] == session {
		delete(c.sessions, containerID)
		c.mu.Lock()
		delete(c.snap.Attached, containerID)
		c.mu.Unlock()
	}
	c.attachMu.Unlock()
	c.notify()
}

// Session returns the live session of a container, if any.
func (c *Coordinator) Session(containerID string) (*portainer.AttachSession, bool) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	s, ok := c.sessions[containerID]
	if !ok || s.State() == portainer.SessionClosed {
		return nil, false
	}
	return s, true
}

// Detach disconnects the session of a container.
func (c *Coordinator) Detach(containerID string) {
	c.attachMu.Lock()
	s, ok := c.sessions[containerID]
	c.attachMu.Unlock()
	if ok {
		s.Disconnect()
	}
}

func (c *Coordinator) disconnectAll() {
	c.attachMu.Lock()
	sessions := make([]*portainer.AttachSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.attachMu.Unlock()
	for _, s := range sessions {
		s.Disconnect()
	}
}
