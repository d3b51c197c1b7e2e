package portainer

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Route building is pure: every function maps parameters to a relative URL
// (path plus query) and fails only with InvalidParameters.

const (
	pathAuth      = "/api/auth"
	pathEndpoints = "/api/endpoints"
	pathStacks    = "/api/stacks"
	pathAttach    = "/api/websocket/attach"
)

func loginPath() *url.URL {
	return &url.URL{Path: pathAuth}
}

func listEndpointsPath() *url.URL {
	return &url.URL{Path: pathEndpoints}
}

func listContainersPath(endpointID int, filters Filters) (*url.URL, error) {
	if err := checkEndpoint(endpointID); err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("all", "true")
	if len(filters) > 0 {
		encoded, err := json.Marshal(filters)
		if err != nil {
			return nil, invalidParams("encode filters: %v", err)
		}
		values.Set("filters", string(encoded))
	}
	return &url.URL{Path: dockerPath(endpointID, "containers", "json"), RawQuery: values.Encode()}, nil
}

func inspectContainerPath(containerID string, endpointID int) (*url.URL, error) {
	if err := checkContainer(containerID, endpointID); err != nil {
		return nil, err
	}
	return &url.URL{Path: dockerPath(endpointID, "containers", containerID, "json")}, nil
}

func executeActionPath(containerID string, endpointID int, action Action) (*url.URL, error) {
	if err := checkContainer(containerID, endpointID); err != nil {
		return nil, err
	}
	if !action.Valid() {
		return nil, invalidParams("unknown action %q", action)
	}
	return &url.URL{Path: dockerPath(endpointID, "containers", containerID, string(action))}, nil
}

func removeContainerPath(containerID string, endpointID int, force bool) (*url.URL, error) {
	if err := checkContainer(containerID, endpointID); err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("force", strconv.FormatBool(force))
	return &url.URL{Path: dockerPath(endpointID, "containers", containerID), RawQuery: values.Encode()}, nil
}

func fetchLogsPath(containerID string, endpointID int, opts LogOptions) (*url.URL, error) {
	if err := checkContainer(containerID, endpointID); err != nil {
		return nil, err
	}
	if opts.Tail < 0 {
		return nil, invalidParams("tail must not be negative")
	}
	values := url.Values{}
	since := int64(0)
	if !opts.Since.IsZero() {
		since = opts.Since.Unix()
	}
	values.Set("since", strconv.FormatInt(since, 10))
	values.Set("stdout", "1")
	values.Set("stderr", "1")
	if opts.Tail > 0 {
		values.Set("tail", strconv.Itoa(opts.Tail))
	} else {
		values.Set("tail", "all")
	}
	values.Set("timestamps", strconv.FormatBool(opts.Timestamps))
	return &url.URL{Path: dockerPath(endpointID, "containers", containerID, "logs"), RawQuery: values.Encode()}, nil
}

// attachPath carries the token in the query: browsers and most websocket
// clients cannot set headers on the upgrade request.
func attachPath(containerID string, endpointID int, token string) (*url.URL, error) {
	if err := checkContainer(containerID, endpointID); err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("token", token)
	values.Set("endpointId", strconv.Itoa(endpointID))
	values.Set("id", containerID)
	return &url.URL{Path: pathAttach, RawQuery: values.Encode()}, nil
}

func listStacksPath(endpointID *int) (*url.URL, error) {
	rel := &url.URL{Path: pathStacks}
	if endpointID == nil {
		return rel, nil
	}
	if err := checkEndpoint(*endpointID); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(map[string]int{"EndpointID": *endpointID})
	if err != nil {
		return nil, invalidParams("encode filters: %v", err)
	}
	values := url.Values{}
	values.Set("filters", string(encoded))
	rel.RawQuery = values.Encode()
	return rel, nil
}

func getStackPath(stackID int) (*url.URL, error) {
	if err := checkStack(stackID); err != nil {
		return nil, err
	}
	return &url.URL{Path: stackPath(stackID)}, nil
}

// setStackStatePath accepts endpointID 0 when the caller does not know it.
func setStackStatePath(stackID int, started bool, endpointID int) (*url.URL, error) {
	if err := checkStack(stackID); err != nil {
		return nil, err
	}
	verb := "stop"
	if started {
		verb = "start"
	}
	rel := &url.URL{Path: stackPath(stackID) + "/" + verb}
	if endpointID < 0 {
		return nil, invalidParams("endpoint id must not be negative")
	}
	if endpointID > 0 {
		rel.RawQuery = endpointQuery(endpointID).Encode()
	}
	return rel, nil
}

func createStackPath(endpointID int, stackType StackType) (*url.URL, error) {
	if err := checkEndpoint(endpointID); err != nil {
		return nil, err
	}
	switch stackType {
	case StackTypeSwarm, StackTypeCompose, StackTypeKubernetes:
	default:
		return nil, invalidParams("unknown stack type %d", stackType)
	}
	values := endpointQuery(endpointID)
	values.Set("type", strconv.Itoa(int(stackType)))
	values.Set("method", "string")
	return &url.URL{Path: pathStacks, RawQuery: values.Encode()}, nil
}

func updateStackPath(stackID, endpointID int) (*url.URL, error) {
	return stackWithEndpoint(stackID, endpointID)
}

func deleteStackPath(stackID, endpointID int) (*url.URL, error) {
	return stackWithEndpoint(stackID, endpointID)
}

func stackWithEndpoint(stackID, endpointID int) (*url.URL, error) {
	if err := checkStack(stackID); err != nil {
		return nil, err
	}
	if err := checkEndpoint(endpointID); err != nil {
		return nil, err
	}
	return &url.URL{Path: stackPath(stackID), RawQuery: endpointQuery(endpointID).Encode()}, nil
}

func dockerPath(endpointID int, parts ...string) string {
	return pathEndpoints + "/" + strconv.Itoa(endpointID) + "/docker/" + strings.Join(parts, "/")
}

func stackPath(stackID int) string {
	return pathStacks + "/" + strconv.Itoa(stackID)
}

func endpointQuery(endpointID int) url.Values {
	values := url.Values{}
	values.Set("endpointId", strconv.Itoa(endpointID))
	return values
}

func checkEndpoint(endpointID int) error {
	if endpointID <= 0 {
		return invalidParams("endpoint id must be positive, got %d", endpointID)
	}
	return nil
}

func checkContainer(containerID string, endpointID int) error {
	if strings.TrimSpace(containerID) == "" {
		return invalidParams("container id required")
	}
	return checkEndpoint(endpointID)
}

func checkStack(stackID int) error {
	if stackID <= 0 {
		return invalidParams("stack id must be positive, got %d", stackID)
	}
	return nil
}
