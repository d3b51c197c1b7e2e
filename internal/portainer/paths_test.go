package portainer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListContainersPath(t *testing.T) {
	rel, err := listContainersPath(3, nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/endpoints/3/docker/containers/json", rel.Path)
	assert.Equal(t, "all=true", rel.RawQuery)

	rel, err = listContainersPath(3, Filters{"id": {"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":["a","b"]}`, rel.Query().Get("filters"))

	_, err = listContainersPath(0, nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestContainerPathsValidate(t *testing.T) {
	_, err := inspectContainerPath(" ", 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	_, err = executeActionPath("abc", -1, ActionStart)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	_, err = executeActionPath("abc", 1, Action("explode"))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	rel, err := inspectContainerPath("abc", 1)
	require.NoError(t, err)
	assert.Equal(t, "/api/endpoints/1/docker/containers/abc/json", rel.Path)

	rel, err = executeActionPath("abc", 1, ActionUnpause)
	require.NoError(t, err)
	assert.Equal(t, "/api/endpoints/1/docker/containers/abc/unpause", rel.Path)

	rel, err = removeContainerPath("abc", 1, false)
	require.NoError(t, err)
	assert.Equal(t, "/api/endpoints/1/docker/containers/abc", rel.Path)
	assert.Equal(t, "false", rel.Query().Get("force"))
}

func TestFetchLogsPath(t *testing.T) {
	since := time.Unix(1700000000, 0)
	rel, err := fetchLogsPath("abc", 1, LogOptions{Since: since, Tail: 50, Timestamps: true})
	require.NoError(t, err)
	q := rel.Query()
	assert.Equal(t, "/api/endpoints/1/docker/containers/abc/logs", rel.Path)
	assert.Equal(t, "1700000000", q.Get("since"))
	assert.Equal(t, "50", q.Get("tail"))
	assert.Equal(t, "true", q.Get("timestamps"))
	assert.Equal(t, "1", q.Get("stdout"))
	assert.Equal(t, "1", q.Get("stderr"))

	rel, err = fetchLogsPath("abc", 1, LogOptions{})
	require.NoError(t, err)
	assert.Equal(t, "all", rel.Query().Get("tail"))
	assert.Equal(t, "0", rel.Query().Get("since"))

	_, err = fetchLogsPath("abc", 1, LogOptions{Tail: -1})
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestAttachPath(t *testing.T) {
	rel, err := attachPath("abc", 4, "tok")
	require.NoError(t, err)
	assert.Equal(t, "/api/websocket/attach", rel.Path)
	q := rel.Query()
	assert.Equal(t, "tok", q.Get("token"))
	assert.Equal(t, "4", q.Get("endpointId"))
	assert.Equal(t, "abc", q.Get("id"))
}

func TestStackPaths(t *testing.T) {
	rel, err := listStacksPath(nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/stacks", rel.Path)
	assert.Empty(t, rel.RawQuery)

	id := 3
	rel, err = listStacksPath(&id)
	require.NoError(t, err)
	assert.Equal(t, `{"EndpointID":3}`, rel.Query().Get("filters"))

	rel, err = getStackPath(5)
	require.NoError(t, err)
	assert.Equal(t, "/api/stacks/5", rel.Path)

	rel, err = setStackStatePath(5, false, 0)
	require.NoError(t, err)
	assert.Equal(t, "/api/stacks/5/stop", rel.Path)
	assert.Empty(t, rel.RawQuery)

	rel, err = setStackStatePath(5, true, 2)
	require.NoError(t, err)
	assert.Equal(t, "/api/stacks/5/start", rel.Path)
	assert.Equal(t, "2", rel.Query().Get("endpointId"))

	_, err = setStackStatePath(5, true, -1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	rel, err = createStackPath(1, StackTypeCompose)
	require.NoError(t, err)
	assert.Equal(t, "2", rel.Query().Get("type"))
	assert.Equal(t, "string", rel.Query().Get("method"))

	_, err = createStackPath(1, StackType(7))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	rel, err = updateStackPath(5, 1)
	require.NoError(t, err)
	assert.Equal(t, "/api/stacks/5", rel.Path)
	assert.Equal(t, "1", rel.Query().Get("endpointId"))

	_, err = deleteStackPath(5, 0)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	_, err = deleteStackPath(0, 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
