// Package app provides the orchestration layer for berth.
//
// # Overview
//
// This package is the composition root: it loads configuration, opens the log
// file and the on-disk cache, builds the Portainer client and the state
// coordinator, and hands the coordinator to the UI.
//
// # Startup
//
//  1. Load ~/.config/berth/config.toml (flags override server and log level)
//  2. Open the log file and build the zerolog logger
//  3. Open the bbolt cache, falling back to memory when it is unavailable
//  4. Restore cached endpoints, containers and stacks
//  5. Connect using the saved token, or log in with configured credentials
//  6. Start the poller and an initial refresh, then run the TUI (blocks)
//
// # Polling Behavior
//
// The poller calls RefreshAll at the configured interval (default 5 seconds).
// After consecutive failures the delay doubles per failure, capped at 30
// seconds, and returns to the base interval after the next success. Nothing
// is fetched while the coordinator is logged out.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Configuration file invalid
//   - Log file cannot be opened or the log level/format is unknown
//
// Recoverable errors (logged, the UI still starts):
//   - Cache unavailable
//   - Connect or login failure
//   - Refresh failures during polling
package app
