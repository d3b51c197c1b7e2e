package portainer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// Well-known compose labels.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// EndpointStatus reports whether an endpoint was reachable at its last check.
type EndpointStatus int

const (
	EndpointStatusUnknown EndpointStatus = 0
	EndpointStatusUp      EndpointStatus = 1
	EndpointStatusDown    EndpointStatus = 2
)

// Endpoint is a remote management target.
type Endpoint struct {
	ID        int            `json:"Id"`
	Name      string         `json:"Name,omitempty"`
	Type      int            `json:"Type,omitempty"`
	URL       string         `json:"URL,omitempty"`
	PublicURL string         `json:"PublicURL,omitempty"`
	Status    EndpointStatus `json:"Status,omitempty"`
	GroupID   int            `json:"GroupId,omitempty"`
	TagIDs    []int          `json:"TagIds,omitempty"`
}

// DisplayName falls back to the id when the endpoint has no name.
func (e Endpoint) DisplayName() string {
	if name := strings.TrimSpace(e.Name); name != "" {
		return name
	}
	return "endpoint " + strconv.Itoa(e.ID)
}

// ContainerState is the Docker lifecycle state of a container.
type ContainerState string

const (
	StateCreated    ContainerState = "created"
	StateRunning    ContainerState = "running"
	StatePaused     ContainerState = "paused"
	StateRestarting ContainerState = "restarting"
	StateRemoving   ContainerState = "removing"
	StateExited     ContainerState = "exited"
	StateDead       ContainerState = "dead"
)

// Known reports whether s is one of the documented states.
func (s ContainerState) Known() bool {
	switch s {
	case StateCreated, StateRunning, StatePaused, StateRestarting, StateRemoving, StateExited, StateDead:
		return true
	}
	return false
}

// Container is one entry of the container list.
type Container struct {
	ID          string                               `json:"Id"`
	Names       []string                             `json:"Names,omitempty"`
	Image       string                               `json:"Image"`
	ImageID     string                               `json:"ImageID,omitempty"`
	Command     string                               `json:"Command,omitempty"`
	Created     int64                                `json:"Created,omitempty"`
	Ports       []types.Port                         `json:"Ports,omitempty"`
	Labels      map[string]string                    `json:"Labels,omitempty"`
	State       ContainerState                       `json:"State"`
	Status      string                               `json:"Status,omitempty"`
	NetworkMode string                               `json:"-"`
	Networks    map[string]*network.EndpointSettings `json:"-"`
	Mounts      []types.MountPoint                   `json:"Mounts,omitempty"`
}

type containerAlias Container

type containerWire struct {
	containerAlias
	HostConfig struct {
		NetworkMode string `json:"NetworkMode,omitempty"`
	} `json:"HostConfig"`
	NetworkSettings struct {
		Networks map[string]*network.EndpointSettings `json:"Networks,omitempty"`
	} `json:"NetworkSettings"`
}

// UnmarshalJSON flattens the nested host config and network settings.
func (c *Container) UnmarshalJSON(data []byte) error {
	var w containerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Container(w.containerAlias)
	c.NetworkMode = w.HostConfig.NetworkMode
	c.Networks = w.NetworkSettings.Networks
	return nil
}

// MarshalJSON restores the nested wire shape so cached records round-trip.
func (c Container) MarshalJSON() ([]byte, error) {
	var w containerWire
	w.containerAlias = containerAlias(c)
	w.HostConfig.NetworkMode = c.NetworkMode
	w.NetworkSettings.Networks = c.Networks
	return json.Marshal(w)
}

// DisplayName returns the first name, without the leading slash Docker adds.
// Names that are links to other containers ("/other/alias") are skipped.
func (c Container) DisplayName() string {
	for _, name := range c.Names {
		trimmed := strings.TrimPrefix(name, "/")
		if trimmed != "" && !strings.Contains(trimmed, "/") {
			return trimmed
		}
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// StackName returns the compose project the container belongs to, if any.
func (c Container) StackName() string {
	return c.Labels[LabelComposeProject]
}

// AssociationKey identifies the logical service a container implements, so a
// recreated container can be matched with its predecessor. Empty when the
// container carries no service label.
func (c Container) AssociationKey() string {
	service := c.Labels[LabelComposeService]
	if service == "" {
		return ""
	}
	return c.Labels[LabelComposeProject] + "/" + service
}

// Action is a container lifecycle request.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionKill    Action = "kill"
	ActionPause   Action = "pause"
	ActionUnpause Action = "unpause"
)

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	_, ok := expectedStates[a]
	return ok
}

// ExpectedState is the state a container settles in once a succeeds.
func (a Action) ExpectedState() ContainerState {
	return expectedStates[a]
}

var expectedStates = map[Action]ContainerState{
	ActionStart:   StateRunning,
	ActionStop:    StateExited,
	ActionRestart: StateRunning,
	ActionKill:    StateExited,
	ActionPause:   StatePaused,
	ActionUnpause: StateRunning,
}

// StackType is the orchestrator a stack is deployed with.
type StackType int

const (
	StackTypeSwarm      StackType = 1
	StackTypeCompose    StackType = 2
	StackTypeKubernetes StackType = 3
)

func (t StackType) String() string {
	switch t {
	case StackTypeSwarm:
		return "swarm"
	case StackTypeCompose:
		return "compose"
	case StackTypeKubernetes:
		return "kubernetes"
	default:
		return "unknown"
	}
}

// StackStatus is the deployment status of a stack.
type StackStatus int

const (
	StackStatusActive   StackStatus = 1
	StackStatusInactive StackStatus = 2
)

func (s StackStatus) String() string {
	switch s {
	case StackStatusActive:
		return "active"
	case StackStatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// EnvVar is a stack environment variable.
type EnvVar struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// Stack is a named group of containers deployed together.
type Stack struct {
	ID           int         `json:"Id"`
	Name         string      `json:"Name"`
	Type         StackType   `json:"Type"`
	EndpointID   int         `json:"EndpointId"`
	Status       StackStatus `json:"Status"`
	Env          []EnvVar    `json:"Env,omitempty"`
	EntryPoint   string      `json:"EntryPoint,omitempty"`
	CreationDate int64       `json:"CreationDate,omitempty"`
	UpdateDate   int64       `json:"UpdateDate,omitempty"`
}

// Started reports whether the stack is active.
func (s Stack) Started() bool {
	return s.Status == StackStatusActive
}

// CreateStackRequest deploys a new stack from file content.
type CreateStackRequest struct {
	EndpointID       int       `json:"-" validate:"gt=0"`
	Type             StackType `json:"-" validate:"oneof=1 2 3"`
	Name             string    `json:"name" validate:"required,max=255"`
	StackFileContent string    `json:"stackFileContent" validate:"required"`
	SwarmID          string    `json:"swarmID,omitempty"`
	Env              []EnvVar  `json:"env,omitempty" validate:"dive"`
}

// UpdateStackRequest replaces the file content and environment of a stack.
type UpdateStackRequest struct {
	StackFileContent string   `json:"stackFileContent" validate:"required"`
	Env              []EnvVar `json:"env,omitempty" validate:"dive"`
	Prune            bool     `json:"prune"`
	PullImage        bool     `json:"pullImage"`
}

// ContainerDetails is the inspect record of a single container.
type ContainerDetails struct {
	ID              string                 `json:"Id"`
	Created         Timestamp              `json:"Created"`
	Path            string                 `json:"Path"`
	Args            []string               `json:"Args"`
	State           *DetailsState          `json:"State"`
	Image           string                 `json:"Image"`
	Name            string                 `json:"Name"`
	RestartCount    int                    `json:"RestartCount"`
	Driver          string                 `json:"Driver"`
	Platform        string                 `json:"Platform"`
	Config          *container.Config      `json:"Config"`
	HostConfig      *container.HostConfig  `json:"HostConfig"`
	NetworkSettings *types.NetworkSettings `json:"NetworkSettings"`
	Mounts          []types.MountPoint     `json:"Mounts"`
	GraphDriver     types.GraphDriverData  `json:"GraphDriver"`
}

// DetailsState is the runtime state section of an inspect record.
type DetailsState struct {
	Status     ContainerState `json:"Status"`
	Running    bool           `json:"Running"`
	Paused     bool           `json:"Paused"`
	Restarting bool           `json:"Restarting"`
	OOMKilled  bool           `json:"OOMKilled"`
	Dead       bool           `json:"Dead"`
	Pid        int            `json:"Pid"`
	ExitCode   int            `json:"ExitCode"`
	Error      string         `json:"Error"`
	StartedAt  Timestamp      `json:"StartedAt"`
	FinishedAt Timestamp      `json:"FinishedAt"`
	Health     *Health        `json:"Health,omitempty"`
}

// Health is the healthcheck summary of a container.
type Health struct {
	Status        string `json:"Status"`
	FailingStreak int    `json:"FailingStreak"`
}

// Timestamp decodes ISO-8601 timestamps with or without fractional seconds.
type Timestamp struct {
	time.Time
}

// ParseTimestamp tries the precise layout first, then the coarse one.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &Error{Kind: KindInvalidDate, Message: value}
}

// UnmarshalJSON accepts null and "" as the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &Error{Kind: KindInvalidDate, Message: string(data)}
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes RFC3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Filters is a Docker list filter: key to accepted values.
type Filters map[string][]string

// LogOptions configures FetchLogs.
type LogOptions struct {
	Since      time.Time
	Tail       int // zero requests all lines
	Timestamps bool
}

type authRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	JWT string `json:"jwt"`
}
