package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/connection"
	"github.com/rickgao/whack/internal/xmpp"
)

// fakeConn is a connection.Connection that never touches the network.
type fakeConn struct {
	id   string
	comp component.Component

	connectErr error
	initErr    error
	sendErr    error
	block      chan struct{} // Connect waits for this or ctx when non-nil
	entered    chan struct{} // closed when Connect starts

	mu          sync.Mutex
	domain      string
	port        int
	subdomain   string
	secret      string
	jid         xmpp.JID
	connected   bool
	initialized bool
	shutdowns   int
	sent        []*xmpp.Packet
}

func (f *fakeConn) ID() string                     { return f.id }
func (f *fakeConn) Component() component.Component { return f.comp }

func (f *fakeConn) Connect(ctx context.Context, domain string, port int, dialer connection.Dialer, subdomain, secret string) error {
	f.mu.Lock()
	f.domain, f.port, f.subdomain, f.secret = domain, port, subdomain, secret
	f.mu.Unlock()

	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return fmt.Errorf("handshake: %w", ctx.Err())
		}
	}
	if f.connectErr != nil {
		return f.connectErr
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Initialize(jid xmpp.JID, mgr component.Manager) error {
	if f.initErr != nil {
		return f.initErr
	}
	if err := f.comp.Initialize(jid, mgr); err != nil {
		return err
	}

	f.mu.Lock()
	f.jid = jid
	f.initialized = true
	f.mu.Unlock()

	f.comp.Start()
	return nil
}

func (f *fakeConn) Send(p *xmpp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if !f.connected {
		return connection.ErrNotConnected
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeConn) Shutdown() error {
	f.mu.Lock()
	f.shutdowns++
	first := f.shutdowns == 1
	initialized := f.initialized
	f.connected = false
	f.mu.Unlock()

	if first && initialized {
		f.comp.Shutdown()
	}
	return nil
}

func (f *fakeConn) JID() xmpp.JID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jid
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) sentPackets() []*xmpp.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*xmpp.Packet(nil), f.sent...)
}

func (f *fakeConn) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

// connFactory hands out fakeConns and remembers them.
type connFactory struct {
	mu        sync.Mutex
	conns     []*fakeConn
	configure func(*fakeConn)
}

func (cf *connFactory) new(c component.Component, logger *slog.Logger) connection.Connection {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	f := &fakeConn{id: fmt.Sprintf("conn-%d", len(cf.conns)+1), comp: c}
	if cf.configure != nil {
		cf.configure(f)
	}
	cf.conns = append(cf.conns, f)
	return f
}

func (cf *connFactory) last() *fakeConn {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if len(cf.conns) == 0 {
		return nil
	}
	return cf.conns[len(cf.conns)-1]
}

// testComponent counts lifecycle calls.
type testComponent struct {
	name string

	// onStart runs inside Start with the manager from Initialize.
	onStart func(c *testComponent, mgr component.Manager)

	mu        sync.Mutex
	jid       xmpp.JID
	mgr       component.Manager
	inits     int
	starts    int
	shutdowns int
	packets   []*xmpp.Packet
}

func newTestComponent(name string) *testComponent {
	return &testComponent{name: name}
}

func (c *testComponent) Name() string        { return c.name }
func (c *testComponent) Description() string { return "test component" }

func (c *testComponent) Initialize(jid xmpp.JID, mgr component.Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jid = jid
	c.mgr = mgr
	c.inits++
	return nil
}

func (c *testComponent) Start() {
	c.mu.Lock()
	c.starts++
	mgr := c.mgr
	c.mu.Unlock()

	if c.onStart != nil {
		c.onStart(c, mgr)
	}
}

func (c *testComponent) ProcessPacket(p *xmpp.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, p)
}

func (c *testComponent) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdowns++
}

func (c *testComponent) counts() (inits, starts, shutdowns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inits, c.starts, c.shutdowns
}

// sliceComponent has a non-comparable dynamic type.
type sliceComponent []string

func (sliceComponent) Name() string                                         { return "slice" }
func (sliceComponent) Description() string                                  { return "not comparable" }
func (sliceComponent) Initialize(jid xmpp.JID, mgr component.Manager) error { return nil }
func (sliceComponent) Start()                                               {}
func (sliceComponent) ProcessPacket(p *xmpp.Packet)                         {}
func (sliceComponent) Shutdown()                                            {}

// valueComponent has a comparable type whose value may hold an unhashable field.
type valueComponent struct {
	tag any
}

func (valueComponent) Name() string                                         { return "value" }
func (valueComponent) Description() string                                  { return "unhashable field" }
func (valueComponent) Initialize(jid xmpp.JID, mgr component.Manager) error { return nil }
func (valueComponent) Start()                                               {}
func (valueComponent) ProcessPacket(p *xmpp.Packet)                         {}
func (valueComponent) Shutdown()                                            {}

// newTestManager builds a manager for example.org backed by fake connections.
func newTestManager(t *testing.T, opts ...Option) (*Manager, *connFactory) {
	t.Helper()

	cf := &connFactory{}
	cfg := DefaultConfig("example.org")
	cfg.HandshakeTimeout = time.Second

	all := append([]Option{WithConnectionFactory(cf.new)}, opts...)
	m, err := New(cfg, all...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, cf
}

func testMessage(t *testing.T, body string) *xmpp.Packet {
	t.Helper()
	p, err := xmpp.NewMessage(xmpp.NewJID("", "chat.example.org", ""), xmpp.NewJID("alice", "example.org", ""), "chat", body)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	return p
}
