package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/berth/internal/cache"
	"github.com/five82/berth/internal/config"
	"github.com/five82/berth/internal/logging"
	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/prefs"
	"github.com/five82/berth/internal/secrets"
	"github.com/five82/berth/internal/state"
	"github.com/five82/berth/internal/ui"
)

// Options configure the berth application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/berth/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
	ServerURL  string // overrides the configured server
	LogLevel   string // overrides the configured level
}

// Run boots the berth TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: logFile})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		logger.Warn().Err(err).Msg("load preferences")
	}

	store := cache.Open(cfg.CachePath, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close cache")
		}
	}()

	client := portainer.NewClient(portainer.WithLogger(logger))
	coord := state.New(state.Options{
		API:                 client,
		Cache:               store,
		Secrets:             secrets.NewFile(cfg.SecretsPath),
		Logger:              logger,
		Username:            cfg.Username,
		Password:            cfg.Password,
		PreferredEndpointID: cfg.EndpointID,
	})

	interval := cfg.Poll
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	// Cached data gives the UI something to show before the first round trip.
	coord.LoadCached()
	connect(ctx, coord, cfg.ServerURL, logger)

	StartPoller(ctx, coord, interval, logger)
	go initialRefresh(ctx, coord, logger)

	logger.Info().Str("server", cfg.ServerURL).Dur("poll", interval).Msg("starting berth")
	return ui.Run(ui.Options{
		Context:   ctx,
		Backend:   coord,
		Logger:    logger,
		ServerURL: cfg.ServerURL,
		PollTick:  time.Second,
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
	})
}

// Logout forgets the saved token for the configured server and clears the cache.
func Logout(opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if cfg.ServerURL == "" {
		return errors.New("no server configured")
	}

	logger := zerolog.Nop()
	store := cache.Open(cfg.CachePath, logger)
	defer func() { _ = store.Close() }()

	client := portainer.NewClient(portainer.WithLogger(logger))
	if err := client.Configure(cfg.ServerURL, ""); err != nil {
		return fmt.Errorf("configure client: %w", err)
	}
	coord := state.New(state.Options{
		API:     client,
		Cache:   store,
		Secrets: secrets.NewFile(cfg.SecretsPath),
		Logger:  logger,
	})
	coord.Logout()
	return nil
}

// connect is best effort: without a server or credentials the UI starts
// logged out and shows why.
func connect(ctx context.Context, coord *state.Coordinator, serverURL string, logger zerolog.Logger) {
	if serverURL == "" {
		logger.Warn().Msg("no server configured")
		return
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := coord.Connect(connectCtx, serverURL); err != nil {
		logger.Warn().Err(err).Str("server", serverURL).Msg("connect failed")
	}
}

func initialRefresh(ctx context.Context, coord *state.Coordinator, logger zerolog.Logger) {
	if coord.Snapshot().LoggedOut {
		return
	}
	if _, err := coord.RefreshAll(ctx); err != nil && !portainer.IsCancelled(err) {
		logger.Warn().Err(err).Msg("initial refresh failed")
	}
}
