// Package config loads the publisher's optional YAML config file: the
// fields that don't make sense as repeated flags (multiple named
// targets, the default stream key template, watchdog durations).
// Flags parsed by cmd/rtmp-publish override whatever this file sets.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the publisher's file-based configuration.
type Config struct {
	Targets           []Target `yaml:"targets,omitempty"`
	StreamKeyTemplate string   `yaml:"stream_key_template,omitempty"`
	SocketWatchdog    string   `yaml:"socket_watchdog,omitempty"`
}

// Target is one named publish destination. The shape mirrors a
// relay-target config entry (app/name/mode/remote_url/reconnect);
// Mode must be "push" here since this client only ever publishes out.
type Target struct {
	Name      string `yaml:"name"`
	RemoteURL string `yaml:"remote_url"`
	App       string `yaml:"app,omitempty"` // overrides the app segment parsed from remote_url
	Mode      string `yaml:"mode"`
	Reconnect bool   `yaml:"reconnect,omitempty"`
}

// Load reads and strictly decodes a YAML config file, rejecting unknown
// fields, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.SocketWatchdog == "" {
		c.SocketWatchdog = "10s"
	}
}

// WatchdogDuration parses SocketWatchdog, which Load has already
// defaulted to a valid value.
func (c *Config) WatchdogDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SocketWatchdog)
	if err != nil {
		return 0, fmt.Errorf("socket_watchdog: %w", err)
	}
	return d, nil
}

// StreamKeyFor expands StreamKeyTemplate for a named target: the literal
// string "{name}" is replaced with t.Name. An empty template leaves the
// target's own stream key (taken from its remote_url) untouched.
func (c *Config) StreamKeyFor(t Target) string {
	if c.StreamKeyTemplate == "" {
		return ""
	}
	out := make([]byte, 0, len(c.StreamKeyTemplate))
	for i := 0; i < len(c.StreamKeyTemplate); i++ {
		if i+6 <= len(c.StreamKeyTemplate) && c.StreamKeyTemplate[i:i+6] == "{name}" {
			out = append(out, t.Name...)
			i += 5
			continue
		}
		out = append(out, c.StreamKeyTemplate[i])
	}
	return string(out)
}
