package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort               = 5222
	DefaultTransport          = TransportTCP
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultKeepAliveInterval  = 30 * time.Second
	DefaultComponentKind      = "echo"
	DefaultSupervisorInterval = 30 * time.Second
	DefaultSupervisorWorkers  = 4
	DefaultSupervisorTimeout  = 15 * time.Second
	DefaultBackend            = BackendMemory
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultConnectTimeout     = 5 * time.Second
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Transports.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Preference backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Transport == "" {
		c.Server.Transport = DefaultTransport
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.KeepAliveInterval == 0 {
		c.Server.KeepAliveInterval = DefaultKeepAliveInterval
	}

	for i := range c.Components {
		if c.Components[i].Kind == "" {
			c.Components[i].Kind = DefaultComponentKind
		}
	}

	// Supervisor defaults
	if c.Supervisor.Interval == 0 {
		c.Supervisor.Interval = DefaultSupervisorInterval
	}
	if c.Supervisor.Concurrency == 0 {
		c.Supervisor.Concurrency = DefaultSupervisorWorkers
	}
	if c.Supervisor.Timeout == 0 {
		c.Supervisor.Timeout = DefaultSupervisorTimeout
	}

	// Preferences defaults
	if c.Preferences.Backend == "" {
		c.Preferences.Backend = DefaultBackend
	}
	if c.Preferences.Backend == BackendPostgres {
		applyDBDefaults(&c.Preferences.Postgres)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.ConnectTimeout == 0 {
		db.ConnectTimeout = DefaultConnectTimeout
	}
}
