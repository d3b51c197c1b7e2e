package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(PasswordEnv, "")

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != "" {
		t.Fatalf("ServerURL = %q, want empty", cfg.ServerURL)
	}
	wantCache, err := ExpandPath(defaultCachePath)
	if err != nil {
		t.Fatalf("ExpandPath(defaultCachePath) returned error: %v", err)
	}
	if cfg.CachePath != wantCache {
		t.Fatalf("CachePath = %q, want %q", cfg.CachePath, wantCache)
	}
	if cfg.Poll != defaultPollSeconds*time.Second {
		t.Fatalf("Poll = %v, want %v", cfg.Poll, defaultPollSeconds*time.Second)
	}
	if cfg.LogLevel != defaultLogLevel || cfg.LogFormat != defaultLogFormat {
		t.Fatalf("log = %q/%q, want defaults", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.HasCredentials() {
		t.Fatalf("HasCredentials = true, want false")
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(PasswordEnv, "hunter2")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server_url = "  https://portainer.local  "
username = " admin "
endpoint_id = 3
cache_path = "  ~/.berth/cache.db  "
log_level = " DEBUG "
log_format = "json"
poll_seconds = 12
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != "https://portainer.local" {
		t.Fatalf("ServerURL = %q, want %q", cfg.ServerURL, "https://portainer.local")
	}
	if cfg.Username != "admin" {
		t.Fatalf("Username = %q, want admin", cfg.Username)
	}
	if cfg.EndpointID != 3 {
		t.Fatalf("EndpointID = %d, want 3", cfg.EndpointID)
	}
	if !strings.HasPrefix(cfg.CachePath, home) {
		t.Fatalf("CachePath = %q, want it under HOME %q", cfg.CachePath, home)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("log = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Poll != 12*time.Second {
		t.Fatalf("Poll = %v, want 12s", cfg.Poll)
	}
	if !cfg.HasCredentials() {
		t.Fatalf("HasCredentials = false, want true")
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
log_file = "   "
log_level = ""
poll_seconds = 0
endpoint_id = -1
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantLog, err := ExpandPath(defaultLogFile)
	if err != nil {
		t.Fatalf("ExpandPath(defaultLogFile) returned error: %v", err)
	}
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.Poll != defaultPollSeconds*time.Second {
		t.Fatalf("Poll = %v, want default", cfg.Poll)
	}
	if cfg.EndpointID != 0 {
		t.Fatalf("EndpointID = %d, want 0", cfg.EndpointID)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`server_url = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/a/b")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("ExpandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := ExpandPath("   "); err == nil {
		t.Fatalf("ExpandPath returned nil error, want error")
	}
}

func TestLoad_EmptyPathReadsDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(PasswordEnv, "")

	if got := DefaultPath(); got != "~/.config/berth/config.toml" {
		t.Fatalf("DefaultPath = %q", got)
	}
	path := filepath.Join(home, ".config", "berth", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("server_url = \"https://p.example.com\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != "https://p.example.com" {
		t.Fatalf("ServerURL = %q, want value from the default path", cfg.ServerURL)
	}
}
