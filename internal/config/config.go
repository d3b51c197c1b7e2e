package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything berth reads at startup.
type Config struct {
	ServerURL   string
	Username    string
	Password    string
	EndpointID  int
	CachePath   string
	SecretsPath string
	LogFile     string
	LogLevel    string
	LogFormat   string
	Poll        time.Duration
}

const (
	defaultConfigPath  = "~/.config/berth/config.toml"
	defaultCachePath   = "~/.local/share/berth/cache.db"
	defaultSecretsPath = "~/.config/berth/servers.toml"
	defaultLogFile     = "~/.local/state/berth/berth.log"
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
	defaultPollSeconds = 5

	// PasswordEnv names the environment variable holding the password used for
	// silent re-authentication.
	PasswordEnv = "BERTH_PASSWORD"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Load reads the config file at path, falling back to defaults when it is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.Password = os.Getenv(PasswordEnv)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL   string `toml:"server_url"`
		Username    string `toml:"username"`
		EndpointID  int    `toml:"endpoint_id"`
		CachePath   string `toml:"cache_path"`
		SecretsPath string `toml:"secrets_path"`
		LogFile     string `toml:"log_file"`
		LogLevel    string `toml:"log_level"`
		LogFormat   string `toml:"log_format"`
		PollSeconds int    `toml:"poll_seconds"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ServerURL = strings.TrimSpace(raw.ServerURL)
	cfg.Username = strings.TrimSpace(raw.Username)
	if raw.EndpointID > 0 {
		cfg.EndpointID = raw.EndpointID
	}
	cfg.CachePath = pathOrDefault(raw.CachePath, defaultCachePath)
	cfg.SecretsPath = pathOrDefault(raw.SecretsPath, defaultSecretsPath)
	cfg.LogFile = pathOrDefault(raw.LogFile, defaultLogFile)
	cfg.LogLevel = valueOrDefault(raw.LogLevel, defaultLogLevel)
	cfg.LogFormat = valueOrDefault(raw.LogFormat, defaultLogFormat)
	if raw.PollSeconds > 0 {
		cfg.Poll = time.Duration(raw.PollSeconds) * time.Second
	}
	cfg.Password = os.Getenv(PasswordEnv)

	return cfg, nil
}

// HasCredentials reports whether silent re-authentication is possible.
func (c Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

func defaults() Config {
	return Config{
		CachePath:   mustExpand(defaultCachePath),
		SecretsPath: mustExpand(defaultSecretsPath),
		LogFile:     mustExpand(defaultLogFile),
		LogLevel:    defaultLogLevel,
		LogFormat:   defaultLogFormat,
		Poll:        defaultPollSeconds * time.Second,
	}
}

func pathOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return mustExpand(fallback)
	}
	return mustExpand(value)
}

func valueOrDefault(value, fallback string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(DefaultPath())
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading tilde and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
