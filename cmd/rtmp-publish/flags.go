package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// publisher targets, so main.go can validate and map.
type cliConfig struct {
	url            string
	configPath     string
	logLevel       string
	socketWatchdog time.Duration
	redact         bool
	showVersion    bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("rtmp-publish", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.url, "url", "", "RTMP publish target (rtmp[s]://host[:port]/app/key)")
	fs.StringVar(&cfg.configPath, "config", "", "Path to a YAML config file with multiple named targets")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.DurationVar(&cfg.socketWatchdog, "socket-watchdog", 10*time.Second, "Idle socket timeout before disconnecting")
	fs.BoolVar(&cfg.redact, "redact", false, "Print the anonymised target URL and exit without connecting")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	if cfg.url == "" && cfg.configPath == "" {
		return nil, fmt.Errorf("one of -url or -config is required")
	}
	if cfg.url != "" && cfg.configPath != "" {
		return nil, fmt.Errorf("-url and -config are mutually exclusive")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.socketWatchdog <= 0 {
		return nil, fmt.Errorf("socket-watchdog must be positive")
	}

	return cfg, nil
}
