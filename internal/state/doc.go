// Package state keeps berth's view of the server current.
//
// # Overview
//
// The Coordinator holds the canonical snapshot of endpoints, containers and
// stacks, issues fetches through the portainer client, merges the results
// and writes them through to the persistence cache. It is the only writer of
// the snapshot; the UI and the poller read copies.
//
//	Poller / UI action               Coordinator                  Client
//	┌────────────────┐       ┌──────────────────────┐       ┌────────────┐
//	│ RefreshAll()   │──────→│ begin(lane)          │──────→│ Fetch...() │
//	│ ExecuteAction()│       │   ↓                  │←──────│            │
//	│                │       │ endLocked(lane, gen) │       └────────────┘
//	│ Snapshot()  ←──│───────│   ↓ merge + persist  │──→ cache.Store
//	└────────────────┘       └──────────────────────┘
//
// # Lanes
//
// Each resource kind has a lane: endpoints, containers, containers-by-id and
// stacks. Starting a refresh cancels the lane's in-flight task and bumps its
// generation. When a task finishes it may only merge if its generation is
// still current, so a superseded fetch never reaches the snapshot even when
// its HTTP response raced the cancellation.
//
// The containers-by-id lane is independent of the full container lane. When
// a by-id patch and a full replace overlap, whichever commits last wins.
//
// # Failure Semantics
//
//   - Fetch failure: the previous data stays, LastError is recorded and
//     ConsecutiveFailures grows (IsOffline after two).
//   - Cancellation or supersession: the caller gets the previous snapshot
//     and a nil error.
//   - Unauthenticated: the saved token is removed, a silent login is tried
//     with the configured credentials and the call is retried once. If that
//     is not possible the coordinator logs out: client reset, snapshot
//     cleared, LoggedOut set.
//   - Cache reads and writes are best effort and only logged.
//
// # Optimistic Updates
//
// ExecuteAction sets the container state to the action's expected state as
// soon as the server accepts the action. RemoveContainer, RemoveStack and
// SetStackState publish a transient marker (RemovingContainers,
// RemovingStacks, LoadingStacks) that is cleared after a grace delay
// whatever the outcome, so a lost response never leaves a stuck spinner.
//
// # Container Identity
//
// Containers are matched across fetches by id and, when a container was
// recreated, by its compose project and service labels. ContainerKeys
// carries the original id forward so the UI can keep its selection on a
// container that was just redeployed. Ties go to the first candidate in the
// previous fetch order.
//
// # Change Notification
//
// Subscribe returns a channel with a buffer of one. Notifications coalesce;
// a receiver should call Snapshot after every wake-up.
package state
