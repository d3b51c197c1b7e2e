// Package config loads berth's TOML configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/berth/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # Defaults
//
//   - Cache database: ~/.local/share/berth/cache.db
//   - Saved server tokens: ~/.config/berth/servers.toml
//   - Log file: ~/.local/state/berth/berth.log
//   - Log level: info, console format
//   - Poll interval: 5s
//
// # TOML Format
//
//	server_url = "https://portainer.example.com"
//	username = "admin"
//	endpoint_id = 2
//	log_level = "debug"
//	poll_seconds = 10
//
// The password is never read from the file. It comes from BERTH_PASSWORD and
// is only used to log in again when a saved token has expired.
//
// Missing config files are NOT an error. A first run without a file starts
// logged out and waits for a server to be chosen.
package config
