package config

import "time"

// Config is the root configuration for a whack daemon.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Components  []ComponentConfig `yaml:"components"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig identifies the XMPP server the components attach to.
type ServerConfig struct {
	Domain            string        `yaml:"domain"`
	Host              string        `yaml:"host"`      // Dial this host instead of the domain
	Port              int           `yaml:"port"`      // Component port on the server
	Transport         string        `yaml:"transport"` // "tcp" or "websocket"
	WebSocketURL      string        `yaml:"websocket_url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
}

// SecretsConfig holds the shared secrets used in component handshakes.
type SecretsConfig struct {
	DefaultKey     string            `yaml:"default_key"`
	DefaultKeyFile string            `yaml:"default_key_file"` // Read at startup; wins over default_key
	Keys           map[string]string `yaml:"keys"`             // Sub-domain → key
}

// ComponentConfig attaches one component at startup.
type ComponentConfig struct {
	Subdomain string `yaml:"subdomain"`
	Kind      string `yaml:"kind"` // Only "echo" is built in
}

// SupervisorConfig controls automatic reattachment of dropped components.
type SupervisorConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PreferencesConfig selects the preference backend.
type PreferencesConfig struct {
	Backend  string   `yaml:"backend"` // "memory" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
