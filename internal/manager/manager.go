package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/connection"
	"github.com/rickgao/whack/internal/metrics"
	"github.com/rickgao/whack/internal/preference"
	"github.com/rickgao/whack/internal/secret"
	"github.com/rickgao/whack/internal/xmpp"
)

// DefaultPort is the server port used when Config.Port is zero.
const DefaultPort = 5222

// Config holds manager configuration.
type Config struct {
	Domain           string
	Port             int
	HandshakeTimeout time.Duration // 0 = bounded only by the caller's ctx
	Connection       connection.Config
}

// DefaultConfig returns sensible defaults for domain.
func DefaultConfig(domain string) Config {
	return Config{
		Domain:           domain,
		Port:             DefaultPort,
		HandshakeTimeout: 10 * time.Second,
		Connection:       connection.DefaultConfig(),
	}
}

// ConnectionFactory creates the connection that will carry c.
type ConnectionFactory func(c component.Component, logger *slog.Logger) connection.Connection

// Stats provides statistics about the manager.
type Stats struct {
	Components int // Live registrations
	Pending    int // Registrations still in the handshake
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDialer sets the transport used to reach the server.
func WithDialer(d connection.Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithPreferences sets the store behind Property and SetProperty.
func WithPreferences(s preference.Store) Option {
	return func(m *Manager) {
		m.prefs = s
	}
}

// WithSecretStore shares an existing secret store.
func WithSecretStore(s *secret.Store) Option {
	return func(m *Manager) {
		m.secrets = s
	}
}

// WithMetrics sets the metrics the manager records into.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithConnectionFactory replaces the XEP-0114 connection.
func WithConnectionFactory(f ConnectionFactory) Option {
	return func(m *Manager) {
		m.newConn = f
	}
}

// Manager attaches components to one server domain.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	secrets *secret.Store
	prefs   preference.Store
	dialer  connection.Dialer
	newConn ConnectionFactory
	metrics *metrics.Metrics

	reg *registry
}

var _ component.Manager = (*Manager)(nil)

// New creates a Manager for cfg.Domain.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg.Domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(cfg.Domain)), ".")
	if cfg.Domain == "" {
		return nil, ErrInvalidDomain
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	m := &Manager{
		cfg: cfg,
		reg: newRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With("domain", cfg.Domain)
	if m.secrets == nil {
		m.secrets = secret.NewStore()
	}
	if m.prefs == nil {
		m.prefs = preference.NewMemoryStore()
	}
	if m.dialer == nil {
		m.dialer = connection.TCPDialer{Timeout: cfg.HandshakeTimeout}
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.newConn == nil {
		connCfg := cfg.Connection
		m.newConn = func(c component.Component, logger *slog.Logger) connection.Connection {
			return connection.NewExternal(c, connCfg, logger)
		}
	}

	return m, nil
}

// Domain returns the server domain.
func (m *Manager) Domain() string { return m.cfg.Domain }

// Port returns the server port.
func (m *Manager) Port() int { return m.cfg.Port }

// IsExternalMode is always true: components run outside the server.
func (m *Manager) IsExternalMode() bool { return true }

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// SetSecretKey sets the secret for subdomain.
func (m *Manager) SetSecretKey(subdomain, key string) {
	m.secrets.Set(normalizeSubdomain(subdomain), key)
}

// SetDefaultSecretKey sets the secret used for sub-domains without their own.
func (m *Manager) SetDefaultSecretKey(key string) {
	m.secrets.SetDefault(key)
}

// SecretKey returns the secret for subdomain, falling back to the default.
func (m *Manager) SecretKey(subdomain string) (string, bool) {
	return m.secrets.Get(normalizeSubdomain(subdomain))
}

// AddComponent connects c to the server under subdomain. It blocks until
// the component is registered, the handshake fails, or ctx ends.
func (m *Manager) AddComponent(ctx context.Context, subdomain string, c component.Component) error {
	subdomain = normalizeSubdomain(subdomain)
	if subdomain == "" {
		return ErrInvalidSubdomain
	}
	if !isComparable(c) {
		return ErrInvalidComponent
	}

	e, err := m.reg.reserve(subdomain, c)
	if err != nil {
		return fmt.Errorf("add %s: %w", subdomain, err)
	}

	// An absent secret is sent as empty; the server rejects it.
	key, _ := m.secrets.Get(subdomain)

	logger := m.logger.With("subdomain", subdomain)
	conn := m.newConn(c, logger)
	logger = logger.With("conn_id", conn.ID())

	hctx := ctx
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}

	start := time.Now()
	err = conn.Connect(hctx, m.cfg.Domain, m.cfg.Port, m.dialer, subdomain, key)
	m.metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
	m.metrics.Handshakes.WithLabelValues(handshakeResult(err)).Inc()
	if err != nil {
		m.abort(e, conn)
		logger.Warn("component handshake failed", "error", err)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, subdomain, err)
	}

	m.reg.attach(e, conn)

	jid := xmpp.ComponentJID(subdomain, m.cfg.Domain)
	if err := conn.Initialize(jid, m); err != nil {
		m.abort(e, conn)
		logger.Warn("component initialization failed", "error", err)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, subdomain, err)
	}

	if err := m.reg.commit(e); err != nil {
		m.shutdownConn(logger, conn)
		return fmt.Errorf("add %s: %w", subdomain, err)
	}

	m.metrics.ComponentsActive.Inc()
	logger.Info("component added", "jid", jid.String(), "component", c.Name())

	return nil
}

// abort releases a failed registration and closes its connection.
func (m *Manager) abort(e *entry, conn connection.Connection) {
	m.reg.release(e)
	conn.Shutdown()
}

// RemoveComponent detaches the component registered under subdomain.
func (m *Manager) RemoveComponent(subdomain string) error {
	subdomain = normalizeSubdomain(subdomain)

	e, ok := m.reg.remove(subdomain)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubdomainNotFound, subdomain)
	}

	m.metrics.ComponentsActive.Dec()
	m.metrics.Removals.Inc()

	logger := m.logger.With("subdomain", subdomain, "conn_id", e.conn.ID())
	if err := e.conn.Shutdown(); err != nil {
		logger.Warn("connection shutdown failed", "error", err)
		return fmt.Errorf("shut down %s: %w", subdomain, err)
	}
	logger.Info("component removed")
	return nil
}

// Lookup returns the live connection registered under subdomain.
func (m *Manager) Lookup(subdomain string) (connection.Connection, bool) {
	return m.reg.lookup(normalizeSubdomain(subdomain))
}

// LookupComponent returns the live connection carrying c.
func (m *Manager) LookupComponent(c component.Component) (connection.Connection, bool) {
	if !isComparable(c) {
		return nil, false
	}
	return m.reg.lookupComponent(c)
}

// Subdomains lists live sub-domains, sorted.
func (m *Manager) Subdomains() []string {
	return m.reg.subdomains()
}

// Stats returns current registration counts.
func (m *Manager) Stats() Stats {
	live, pending := m.reg.counts()
	return Stats{Components: live, Pending: pending}
}

// Shutdown removes every component and closes the connections
// concurrently. AddComponent fails with ErrManagerClosed afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	entries := m.reg.drain()
	m.logger.Info("shutting down manager", "components", len(entries))

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			m.metrics.ComponentsActive.Dec()
			m.metrics.Removals.Inc()
			if err := e.conn.Shutdown(); err != nil {
				return fmt.Errorf("shut down %s: %w", e.subdomain, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn("manager shutdown incomplete", "error", err)
			return err
		}
		m.logger.Info("manager shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Shutdown has been called.
func (m *Manager) Closed() bool {
	return m.reg.isClosed()
}

func (m *Manager) shutdownConn(logger *slog.Logger, conn connection.Connection) {
	if err := conn.Shutdown(); err != nil {
		logger.Warn("connection shutdown failed", "error", err)
	}
}

// handshakeResult classifies a Connect error for metrics.
func handshakeResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, connection.ErrHandshakeRejected):
		return metrics.ResultRejected
	case errors.Is(err, connection.ErrProtocol):
		return metrics.ResultProtocol
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}
