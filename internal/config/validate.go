package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Domain == "" {
		return errors.New("server.domain is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Transport {
	case TransportTCP:
	case TransportWebSocket:
		if c.Server.WebSocketURL != "" &&
			!strings.HasPrefix(c.Server.WebSocketURL, "ws://") &&
			!strings.HasPrefix(c.Server.WebSocketURL, "wss://") {
			return fmt.Errorf("server.websocket_url must start with ws:// or wss://, got %q", c.Server.WebSocketURL)
		}
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportTCP, TransportWebSocket, c.Server.Transport)
	}
	if c.Server.HandshakeTimeout < 0 {
		return errors.New("server.handshake_timeout must be >= 0")
	}

	seen := make(map[string]bool, len(c.Components))
	for i, comp := range c.Components {
		if comp.Subdomain == "" {
			return fmt.Errorf("components[%d].subdomain is required", i)
		}
		if seen[comp.Subdomain] {
			return fmt.Errorf("components[%d].subdomain %q is duplicated", i, comp.Subdomain)
		}
		seen[comp.Subdomain] = true
		if comp.Kind != DefaultComponentKind {
			return fmt.Errorf("components[%d].kind %q is not supported", i, comp.Kind)
		}
	}

	if !c.Supervisor.Disabled {
		if c.Supervisor.Interval < 0 {
			return errors.New("supervisor.interval must be >= 0")
		}
		if c.Supervisor.Concurrency < 1 {
			return errors.New("supervisor.concurrency must be >= 1")
		}
	}

	switch c.Preferences.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.Preferences.Postgres.validate("preferences.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("preferences.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Preferences.Backend)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
