package connection

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/xmpp"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrHandshakeRejected  = errors.New("handshake rejected")
	ErrProtocol           = errors.New("protocol violation")
	ErrStreamClosed       = errors.New("stream closed by server")
	ErrNotInitialized     = errors.New("connection not initialized")
	ErrAlreadyInitialized = errors.New("connection already initialized")
)

// XML namespaces used on a component stream.
const (
	NamespaceStream  = "http://etherx.jabber.org/streams"
	NamespaceStreams = "urn:ietf:params:xml:ns:xmpp-streams"
)

// Connection binds one component to one live stream.
type Connection interface {
	// ID identifies the connection in logs.
	ID() string

	// Connect dials domain:port through dialer and authenticates subdomain
	// with secret. It blocks until the handshake completes, fails, or ctx ends.
	Connect(ctx context.Context, domain string, port int, dialer Dialer, subdomain, secret string) error

	// Initialize hands the assigned address to the component and starts
	// delivering inbound stanzas.
	Initialize(jid xmpp.JID, mgr component.Manager) error

	// Send writes a stanza to the stream.
	Send(p *xmpp.Packet) error

	// Shutdown closes the stream and releases the component. Safe to call more than once.
	Shutdown() error

	// Component returns the component this connection owns.
	Component() component.Component

	// JID returns the address assigned by Initialize.
	JID() xmpp.JID

	// IsConnected reports whether the stream is authenticated and open.
	IsConnected() bool
}

// Dialer opens the byte stream to the server.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
}

// Config configures an external connection.
type Config struct {
	WriteTimeout      time.Duration // Write deadline for each stanza
	KeepAliveInterval time.Duration // Whitespace keepalive period (0 = disabled)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:      5 * time.Second,
		KeepAliveInterval: 30 * time.Second,
	}
}
