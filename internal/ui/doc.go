// Package ui provides the terminal user interface for berth.
//
// The interface is a Bubble Tea program styled with Lipgloss. It reads all
// data from the state coordinator's snapshot and never talks to the server
// directly; every mutation goes through the coordinator so optimistic
// updates and transient markers show up in the tables.
//
// # Views
//
//   - Containers: the selected endpoint's containers with stack, state and image
//   - Stacks: every stack, with start/stop/remove
//   - Endpoints: the endpoint list; enter selects one
//   - Logs: tail of a container's log, optionally following
//   - Inspect: the container's inspect record
//   - Attach: live I/O with the container's main process
//
// # Event Flow
//
//  1. Run builds the Model and subscribes to coordinator change notifications
//  2. Each notification triggers a snapshot fetch; the table cursors follow
//     containers through recreation using the snapshot's stable keys
//  3. A tick refreshes the header age and followed logs
//  4. Key presses dispatch commands that call the coordinator off the UI loop
//
// Theme and display preferences are persisted through the prefs package.
package ui
