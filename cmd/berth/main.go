package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/berth/internal/app"
	"github.com/five82/berth/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file path (default "+config.DefaultPath()+")")
	pollSeconds := flag.Int("poll", 0, "refresh interval in seconds (optional, defaults to the configured interval)")
	server := flag.String("server", "", "server URL (optional, overrides the config file)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (optional)")
	logout := flag.Bool("logout", false, "forget the saved token and cached data, then exit")
	flag.Parse()

	opts := app.Options{
		ConfigPath: *configPath,
		ServerURL:  *server,
		LogLevel:   *logLevel,
	}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = poll
	}

	if *logout {
		if err := app.Logout(opts); err != nil {
			fmt.Fprintf(os.Stderr, "berth: %v\n", err)
			return 1
		}
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "berth: %v\n", err)
		return 1
	}
	return 0
}
