package state

import (
	"context"

	"github.com/five82/berth/internal/portainer"
)

// RefreshEndpoints fetches the endpoint list and replaces it in the snapshot.
// A superseded or cancelled refresh returns the previous snapshot and no error.
func (c *Coordinator) RefreshEndpoints(ctx context.Context) (Snapshot, error) {
	taskCtx, cancel, gen := c.begin(ctx, laneEndpoints)
	defer cancel()

	var endpoints []portainer.Endpoint
	err := c.withAuth(taskCtx, func(ctx context.Context) error {
		var err error
		endpoints, err = c.api.FetchEndpoints(ctx)
		return err
	})

	c.mu.Lock()
	current := c.endLocked(laneEndpoints, gen)
	if abandoned(current, taskCtx, err) || (err == nil && c.snap.LoggedOut) {
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		return snap, nil
	}
	if err != nil {
		c.recordFailureLocked(err)
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn().Err(err).Msg("refresh endpoints failed")
		return snap, err
	}

	sortEndpoints(endpoints)
	selectionChanged := c.setEndpointsLocked(endpoints)
	c.recordSuccessLocked()
	snap := c.snap.clone()
	c.mu.Unlock()

	c.persistEndpoints(snap.Endpoints)
	if selectionChanged {
		c.persistSelection(snap.SelectedID())
		c.persistContainers(snap.Containers)
	}
	c.notify()
	return snap, nil
}

// SetEndpoints replaces the endpoint list and re-derives the selection.
func (c *Coordinator) SetEndpoints(endpoints []portainer.Endpoint) Snapshot {
	list := cloneEndpoints(endpoints)
	sortEndpoints(list)

	c.mu.Lock()
	selectionChanged := c.setEndpointsLocked(list)
	snap := c.snap.clone()
	c.mu.Unlock()

	c.persistEndpoints(snap.Endpoints)
	if selectionChanged {
		c.persistSelection(snap.SelectedID())
		c.persistContainers(snap.Containers)
	}
	c.notify()
	return snap
}

// setEndpointsLocked stores endpoints and picks the selection: the only
// endpoint when there is exactly one, else the persisted id when still
// present, else none. Containers are dropped when the selection changes.
func (c *Coordinator) setEndpointsLocked(endpoints []portainer.Endpoint) bool {
	c.snap.Endpoints = endpoints

	var next *portainer.Endpoint
	switch {
	case len(endpoints) == 1:
		ep := cloneEndpoint(endpoints[0])
		next = &ep
	case c.persistedEndpoint > 0:
		for _, e := range endpoints {
			if e.ID == c.persistedEndpoint {
				ep := cloneEndpoint(e)
				next = &ep
				break
			}
		}
	}

	prevID := c.snap.SelectedID()
	c.snap.Selected = next
	nextID := c.snap.SelectedID()
	if next != nil {
		c.persistedEndpoint = nextID
	}
	if prevID == nextID {
		return false
	}
	c.cancelLaneLocked(laneContainers)
	c.cancelLaneLocked(laneContainersByID)
	c.snap.Containers = nil
	c.snap.ContainerKeys = map[string]string{}
	return true
}

// SetSelectedEndpoint changes the selection. A non-nil endpoint triggers a
// container refresh; nil cancels it and clears containers.
func (c *Coordinator) SetSelectedEndpoint(ctx context.Context, endpoint *portainer.Endpoint) (Snapshot, error) {
	c.mu.Lock()
	prevID := c.snap.SelectedID()
	if endpoint == nil {
		c.snap.Selected = nil
		c.cancelLaneLocked(laneContainers)
		c.cancelLaneLocked(laneContainersByID)
		c.snap.Containers = nil
		c.snap.ContainerKeys = map[string]string{}
		snap := c.snap.clone()
		c.mu.Unlock()
		c.persistSelection(0)
		c.persistContainers(nil)
		c.notify()
		return snap, nil
	}

	ep := cloneEndpoint(*endpoint)
	c.snap.Selected = &ep
	c.persistedEndpoint = ep.ID
	if prevID != ep.ID {
		c.snap.Containers = nil
		c.snap.ContainerKeys = map[string]string{}
	}
	c.mu.Unlock()
	c.persistSelection(ep.ID)
	c.notify()
	return c.RefreshContainers(ctx)
}

// RefreshContainers fetches every container of the selected endpoint.
func (c *Coordinator) RefreshContainers(ctx context.Context) (Snapshot, error) {
	endpointID := c.Snapshot().SelectedID()
	if endpointID == 0 {
		return c.Snapshot(), nil
	}

	taskCtx, cancel, gen := c.begin(ctx, laneContainers)
	defer cancel()

	var containers []portainer.Container
	err := c.withAuth(taskCtx, func(ctx context.Context) error {
		var err error
		containers, err = c.api.FetchContainers(ctx, endpointID, nil)
		return err
	})

	c.mu.Lock()
	current := c.endLocked(laneContainers, gen)
	if abandoned(current, taskCtx, err) || (err == nil && (c.snap.LoggedOut || c.snap.SelectedID() != endpointID)) {
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		return snap, nil
	}
	if err != nil {
		c.recordFailureLocked(err)
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn().Err(err).Int("endpoint", endpointID).Msg("refresh containers failed")
		return snap, err
	}

	sortContainers(containers)
	c.snap.ContainerKeys = carryKeys(c.snap.Containers, containers, c.snap.ContainerKeys)
	c.snap.Containers = containers
	c.recordSuccessLocked()
	snap := c.snap.clone()
	c.mu.Unlock()

	c.persistContainers(snap.Containers)
	c.notify()
	return snap, nil
}

// RefreshContainersByID re-fetches only ids and patches them in place. It runs
// in its own lane and never cancels a full refresh.
func (c *Coordinator) RefreshContainersByID(ctx context.Context, ids []string) (Snapshot, error) {
	endpointID := c.Snapshot().SelectedID()
	if endpointID == 0 || len(ids) == 0 {
		return c.Snapshot(), nil
	}

	taskCtx, cancel, gen := c.begin(ctx, laneContainersByID)
	defer cancel()

	var fetched []portainer.Container
	err := c.withAuth(taskCtx, func(ctx context.Context) error {
		var err error
		fetched, err = c.api.FetchContainers(ctx, endpointID, portainer.Filters{"id": ids})
		return err
	})

	c.mu.Lock()
	current := c.endLocked(laneContainersByID, gen)
	if abandoned(current, taskCtx, err) || (err == nil && (c.snap.LoggedOut || c.snap.SelectedID() != endpointID)) {
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		return snap, nil
	}
	if err != nil {
		c.recordFailureLocked(err)
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		return snap, err
	}

	byID := make(map[string]portainer.Container, len(fetched))
	for _, f := range fetched {
		byID[f.ID] = f
	}
	for i, existing := range c.snap.Containers {
		if f, ok := byID[existing.ID]; ok {
			c.snap.Containers[i] = f
		}
	}
	snap := c.snap.clone()
	c.mu.Unlock()

	c.persistContainers(snap.Containers)
	c.notify()
	return snap, nil
}

// RefreshStacks fetches the stacks of the selected endpoint, or of every
// endpoint when none is selected.
func (c *Coordinator) RefreshStacks(ctx context.Context) (Snapshot, error) {
	var filter *int
	if id := c.Snapshot().SelectedID(); id > 0 {
		filter = &id
	}

	taskCtx, cancel, gen := c.begin(ctx, laneStacks)
	defer cancel()

	var stacks []portainer.Stack
	err := c.withAuth(taskCtx, func(ctx context.Context) error {
		var err error
		stacks, err = c.api.FetchStacks(ctx, filter)
		return err
	})

	c.mu.Lock()
	current := c.endLocked(laneStacks, gen)
	if abandoned(current, taskCtx, err) || (err == nil && c.snap.LoggedOut) {
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		return snap, nil
	}
	if err != nil {
		c.recordFailureLocked(err)
		snap := c.snap.clone()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn().Err(err).Msg("refresh stacks failed")
		return snap, err
	}

	sortStacks(stacks)
	c.snap.Stacks = stacks
	c.recordSuccessLocked()
	snap := c.snap.clone()
	c.mu.Unlock()

	c.persistStacks(snap.Stacks)
	c.notify()
	return snap, nil
}

// RefreshAll refreshes endpoints, then containers and stacks. The first
// failure is returned; later steps still run.
func (c *Coordinator) RefreshAll(ctx context.Context) (Snapshot, error) {
	_, firstErr := c.RefreshEndpoints(ctx)
	if _, err := c.RefreshContainers(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	snap, err := c.RefreshStacks(ctx)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return snap, firstErr
}
