package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/riverline/rtmp-publish/internal/config"
	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/logger"
	"github.com/riverline/rtmp-publish/internal/rtmp/client"
	"github.com/riverline/rtmp-publish/internal/rtmp/uri"
)

// publishTarget is one resolved destination this process drives its own
// independent client.Client against.
type publishTarget struct {
	name string
	url  string
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	targets, err := resolveTargets(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if cfg.redact {
		for _, t := range targets {
			anon, err := uri.Anonymize(t.url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", t.name, err)
				os.Exit(1)
			}
			fmt.Printf("%s: %s\n", t.name, anon)
		}
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t publishTarget) {
			defer wg.Done()
			runTarget(ctx, log, t, cfg.socketWatchdog)
		}(t)
	}
	wg.Wait()
	log.Info("all publish targets stopped")
}

// resolveTargets builds the list of targets to drive, either the single
// -url target or every target named in -config's file, with the stream
// key template and app override from the config file applied.
func resolveTargets(cfg *cliConfig) ([]publishTarget, error) {
	if cfg.url != "" {
		return []publishTarget{{name: "default", url: cfg.url}}, nil
	}

	fileCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, err
	}
	if err := fileCfg.Validate(); err != nil {
		return nil, err
	}

	targets := make([]publishTarget, 0, len(fileCfg.Targets))
	for _, t := range fileCfg.Targets {
		resolved, err := resolveTargetURL(fileCfg, t)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}
		targets = append(targets, publishTarget{name: t.Name, url: resolved})
	}
	return targets, nil
}

// resolveTargetURL applies the config's stream key template and a target's
// app override, if set, to its remote_url.
func resolveTargetURL(fileCfg *config.Config, t config.Target) (string, error) {
	parsed, err := uri.Parse(t.RemoteURL)
	if err != nil {
		return "", err
	}
	if t.App != "" {
		parsed.App = t.App
	}
	if key := fileCfg.StreamKeyFor(t); key != "" {
		parsed.Key = key
	}
	return parsed.String(), nil
}

// runTarget drives one publishing connection end-to-end: connect, log
// state transitions, and hold the connection open until ctx is cancelled.
func runTarget(ctx context.Context, log *slog.Logger, t publishTarget, watchdog time.Duration) {
	tlog := log.With("target", t.name)

	c, err := client.New(t.url,
		client.WithSocketWatchdog(watchdog),
		client.WithCallbacks(client.Callbacks{
			ConnectionState: func(state client.ConnState, reason errors.DisconnectionReason) {
				tlog.Info("connection state changed", "state", state.String(), "reason", reason.String())
			},
			PeerBWChanged: func(bandwidth uint32, limitType uint8) {
				tlog.Info("peer bandwidth changed", "bandwidth", bandwidth, "limit_type", limitType)
			},
		}),
	)
	if err != nil {
		tlog.Error("invalid target", "error", err)
		return
	}

	if err := c.Connect(ctx); err != nil {
		tlog.Error("connect failed", "error", err)
		return
	}
	tlog.Info("publishing", "stream_id", c.StreamID())

	<-ctx.Done()
	c.Disconnect(errors.DisconnectionClientRequest)
	tlog.Info("disconnected")
}
