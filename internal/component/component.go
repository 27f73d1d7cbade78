// Package component defines the contract between a component's business
// logic and the manager that attaches it to the server.
package component

import (
	"context"
	"log/slog"

	"github.com/rickgao/whack/internal/xmpp"
)

// Component is a unit of business logic that owns one sub-domain.
// Implementations must be comparable (use pointer receivers); the manager
// tracks them by identity.
type Component interface {
	// Name is a short human-readable name.
	Name() string

	// Description explains what the component does.
	Description() string

	// Initialize is called once after the handshake succeeds, with the
	// address the component now owns.
	Initialize(jid xmpp.JID, mgr Manager) error

	// Start is called after Initialize, once packets can flow.
	Start()

	// ProcessPacket handles a stanza addressed to the component.
	// It runs on the connection's read loop; it should not block for long.
	ProcessPacket(p *xmpp.Packet)

	// Shutdown is called once when the component is detached.
	Shutdown()
}

// Manager is the capability interface a manager exposes to callers and to
// the components it hosts.
type Manager interface {
	SetSecretKey(subdomain, key string)
	SetDefaultSecretKey(key string)
	SecretKey(subdomain string) (string, bool)

	AddComponent(ctx context.Context, subdomain string, c Component) error
	RemoveComponent(subdomain string) error

	SendPacket(c Component, p *xmpp.Packet) error

	Property(ctx context.Context, name string) (string, bool, error)
	SetProperty(ctx context.Context, name, value string) error

	// IsExternalMode reports whether components run outside the server process.
	IsExternalMode() bool

	// Logger never returns nil.
	Logger() *slog.Logger
}
