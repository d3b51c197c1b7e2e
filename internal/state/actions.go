package state

import (
	"context"
	"time"

	"github.com/five82/berth/internal/portainer"
)

func (c *Coordinator) requireEndpoint() (int, error) {
	id := c.Snapshot().SelectedID()
	if id == 0 {
		return 0, &portainer.Error{Kind: portainer.KindInvalidParameters, Message: "no endpoint selected"}
	}
	return id, nil
}

// ExecuteAction runs a lifecycle action and then sets the container to the
// action's expected state until the next refresh says otherwise.
func (c *Coordinator) ExecuteAction(ctx context.Context, action portainer.Action, containerID string) error {
	endpointID, err := c.requireEndpoint()
	if err != nil {
		return err
	}
	err = c.withAuth(ctx, func(ctx context.Context) error {
		return c.api.ExecuteAction(ctx, action, containerID, endpointID)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	changed := false
	for i := range c.snap.Containers {
		if c.snap.Containers[i].ID == containerID {
			c.snap.Containers[i].State = action.ExpectedState()
			changed = true
			break
		}
	}
	containers := cloneContainers(c.snap.Containers)
	c.mu.Unlock()

	c.logger.Info().Str("container", containerID).Str("action", string(action)).Msg("action executed")
	if changed {
		c.persistContainers(containers)
		c.notify()
	}
	return nil
}

// RemoveContainer deletes a container. The id is reported as removing until
// the grace delay after the call ends, whatever the outcome.
func (c *Coordinator) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	endpointID, err := c.requireEndpoint()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.removingContainers.mark(c.snap.RemovingContainers, containerID)
	c.mu.Unlock()
	c.notify()
	defer c.afterGrace(func() { c.removingContainers.release(c.snap.RemovingContainers, containerID) })

	err = c.withAuth(ctx, func(ctx context.Context) error {
		return c.api.RemoveContainer(ctx, containerID, endpointID, force)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snap.Containers = without(c.snap.Containers, func(ct portainer.Container) bool { return ct.ID == containerID })
	delete(c.snap.ContainerKeys, containerID)
	c.mu.Unlock()

	c.deleteCached(containerKind, containerID)
	c.notify()
	return nil
}

// RemoveStack deletes a stack with the same marker discipline as RemoveContainer.
func (c *Coordinator) RemoveStack(ctx context.Context, stackID int) error {
	endpointID, err := c.stackEndpoint(stackID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.removingStacks.mark(c.snap.RemovingStacks, stackID)
	c.mu.Unlock()
	c.notify()
	defer c.afterGrace(func() { c.removingStacks.release(c.snap.RemovingStacks, stackID) })

	err = c.withAuth(ctx, func(ctx context.Context) error {
		return c.api.DeleteStack(ctx, stackID, endpointID)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snap.Stacks = without(c.snap.Stacks, func(st portainer.Stack) bool { return st.ID == stackID })
	c.mu.Unlock()

	c.deleteCached(stackKind, stackKey(stackID))
	c.notify()
	return nil
}

// SetStackState starts or stops a stack and stores the stack the server
// returns. An empty response leaves the entry unchanged.
func (c *Coordinator) SetStackState(ctx context.Context, stackID int, started bool) error {
	endpointID, err := c.stackEndpoint(stackID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.loadingStacks.mark(c.snap.LoadingStacks, stackID)
	c.mu.Unlock()
	c.notify()
	defer c.afterGrace(func() { c.loadingStacks.release(c.snap.LoadingStacks, stackID) })

	var updated *portainer.Stack
	err = c.withAuth(ctx, func(ctx context.Context) error {
		var err error
		updated, err = c.api.SetStackState(ctx, stackID, endpointID, started)
		return err
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	c.mu.Lock()
	for i := range c.snap.Stacks {
		if c.snap.Stacks[i].ID == stackID {
			c.snap.Stacks[i] = *updated
			break
		}
	}
	stacks := cloneStacks(c.snap.Stacks)
	c.mu.Unlock()

	c.persistStacks(stacks)
	c.notify()
	return nil
}

// stackEndpoint prefers the endpoint recorded on the stack over the selection.
func (c *Coordinator) stackEndpoint(stackID int) (int, error) {
	snap := c.Snapshot()
	if st, ok := snap.Stack(stackID); ok && st.EndpointID > 0 {
		return st.EndpointID, nil
	}
	return c.requireEndpoint()
}

// pendingMarks counts the grace timers still running for each marker, so an
// earlier call's timer does not clear the marker of a later call on the same id.
type pendingMarks[K comparable] map[K]int

func (p pendingMarks[K]) mark(marks map[K]bool, key K) {
	p[key]++
	marks[key] = true
}

// release reads marks at call time; a reset may have swapped the snapshot maps.
func (p pendingMarks[K]) release(marks map[K]bool, key K) {
	if p[key] > 1 {
		p[key]--
		return
	}
	delete(p, key)
	delete(marks, key)
}

// afterGrace applies clear under the lock once the grace delay has passed.
func (c *Coordinator) afterGrace(clear func()) {
	time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		clear()
		c.mu.Unlock()
		c.notify()
	})
}

// InspectContainer fetches details of a container on the selected endpoint.
func (c *Coordinator) InspectContainer(ctx context.Context, containerID string) (*portainer.ContainerDetails, error) {
	endpointID, err := c.requireEndpoint()
	if err != nil {
		return nil, err
	}
	var details *portainer.ContainerDetails
	err = c.withAuth(ctx, func(ctx context.Context) error {
		var err error
		details, err = c.api.InspectContainer(ctx, containerID, endpointID)
		return err
	})
	return details, err
}

// FetchLogs returns log text of a container on the selected endpoint.
func (c *Coordinator) FetchLogs(ctx context.Context, containerID string, opts portainer.LogOptions) (string, error) {
	endpointID, err := c.requireEndpoint()
	if err != nil {
		return "", err
	}
	var text string
	err = c.withAuth(ctx, func(ctx context.Context) error {
		var err error
		text, err = c.api.FetchLogs(ctx, containerID, endpointID, opts)
		return err
	})
	return text, err
}

func without[T any](items []T, drop func(T) bool) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if !drop(item) {
			kept = append(kept, item)
		}
	}
	return kept
}
