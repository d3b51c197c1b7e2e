package state

import (
	"maps"
	"slices"
	"time"

	"github.com/docker/docker/api/types/network"

	"github.com/five82/berth/internal/portainer"
)

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Endpoints  []portainer.Endpoint
	Containers []portainer.Container
	Stacks     []portainer.Stack
	Selected   *portainer.Endpoint

	// ContainerKeys maps a container id to the id of the first container seen
	// for the same logical service, so UI state survives recreation.
	ContainerKeys map[string]string

	RemovingContainers map[string]bool
	RemovingStacks     map[int]bool
	LoadingStacks      map[int]bool
	Attached           map[string]bool

	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive refresh failures
	LoggedOut           bool
}

// IsOffline returns true when the server has been unreachable for multiple refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// SelectedID returns the selected endpoint id, or 0 when none is selected.
func (s Snapshot) SelectedID() int {
	if s.Selected == nil {
		return 0
	}
	return s.Selected.ID
}

// Container returns the container with id.
func (s Snapshot) Container(id string) (portainer.Container, bool) {
	for _, c := range s.Containers {
		if c.ID == id {
			return c, true
		}
	}
	return portainer.Container{}, false
}

// Stack returns the stack with id.
func (s Snapshot) Stack(id int) (portainer.Stack, bool) {
	for _, st := range s.Stacks {
		if st.ID == id {
			return st, true
		}
	}
	return portainer.Stack{}, false
}

// KeyOf returns the stable key of a container id.
func (s Snapshot) KeyOf(id string) string {
	if key, ok := s.ContainerKeys[id]; ok {
		return key
	}
	return id
}

func emptySnapshot() Snapshot {
	return Snapshot{
		ContainerKeys:      map[string]string{},
		RemovingContainers: map[string]bool{},
		RemovingStacks:     map[int]bool{},
		LoadingStacks:      map[int]bool{},
		Attached:           map[string]bool{},
	}
}

// clone returns a deep copy so readers never share memory with the coordinator.
func (s Snapshot) clone() Snapshot {
	dup := s
	dup.Endpoints = cloneEndpoints(s.Endpoints)
	dup.Containers = cloneContainers(s.Containers)
	dup.Stacks = cloneStacks(s.Stacks)
	if s.Selected != nil {
		sel := cloneEndpoint(*s.Selected)
		dup.Selected = &sel
	}
	dup.ContainerKeys = maps.Clone(s.ContainerKeys)
	dup.RemovingContainers = maps.Clone(s.RemovingContainers)
	dup.RemovingStacks = maps.Clone(s.RemovingStacks)
	dup.LoadingStacks = maps.Clone(s.LoadingStacks)
	dup.Attached = maps.Clone(s.Attached)
	return dup
}

func cloneEndpoint(e portainer.Endpoint) portainer.Endpoint {
	e.TagIDs = slices.Clone(e.TagIDs)
	return e
}

func cloneEndpoints(items []portainer.Endpoint) []portainer.Endpoint {
	if len(items) == 0 {
		return nil
	}
	dup := make([]portainer.Endpoint, len(items))
	for i, e := range items {
		dup[i] = cloneEndpoint(e)
	}
	return dup
}

func cloneContainer(c portainer.Container) portainer.Container {
	c.Names = slices.Clone(c.Names)
	c.Ports = slices.Clone(c.Ports)
	c.Mounts = slices.Clone(c.Mounts)
	c.Labels = maps.Clone(c.Labels)
	if c.Networks != nil {
		nets := make(map[string]*network.EndpointSettings, len(c.Networks))
		for name, settings := range c.Networks {
			if settings == nil {
				nets[name] = nil
				continue
			}
			copied := *settings
			nets[name] = &copied
		}
		c.Networks = nets
	}
	return c
}

func cloneContainers(items []portainer.Container) []portainer.Container {
	if len(items) == 0 {
		return nil
	}
	dup := make([]portainer.Container, len(items))
	for i, c := range items {
		dup[i] = cloneContainer(c)
	}
	return dup
}

func cloneStacks(items []portainer.Stack) []portainer.Stack {
	if len(items) == 0 {
		return nil
	}
	dup := make([]portainer.Stack, len(items))
	for i, st := range items {
		st.Env = slices.Clone(st.Env)
		dup[i] = st
	}
	return dup
}
