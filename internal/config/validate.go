package config

import "fmt"

// Validate checks that the config's targets are individually well-formed.
// It does not parse remote_url; uri.Parse does that and reports any wire
// format error once the target is actually dialed.
func (c *Config) Validate() error {
	if c.SocketWatchdog != "" {
		if _, err := c.WatchdogDuration(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Validate checks one target's required fields and mode.
func (t *Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.RemoteURL == "" {
		return fmt.Errorf("remote_url is required")
	}
	switch t.Mode {
	case "", "push":
	default:
		return fmt.Errorf("mode must be \"push\", got %q", t.Mode)
	}
	return nil
}
