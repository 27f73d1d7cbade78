package component

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/whack/internal/xmpp"
)

// Echo answers every message that has a body with the same body, sent back
// to its sender. Presence and iq stanzas are ignored.
type Echo struct {
	mu      sync.RWMutex
	jid     xmpp.JID
	mgr     Manager
	logger  *slog.Logger
	started bool

	received atomic.Int64
	replied  atomic.Int64
}

// NewEcho creates an Echo component.
func NewEcho() *Echo {
	return &Echo{}
}

func (e *Echo) Name() string        { return "echo" }
func (e *Echo) Description() string { return "Replies to each message with its own body" }

// Initialize records the assigned address and the manager used to reply.
func (e *Echo) Initialize(jid xmpp.JID, mgr Manager) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.jid = jid
	e.mgr = mgr
	e.logger = mgr.Logger().With("component", e.Name(), "jid", jid.String())
	return nil
}

func (e *Echo) Start() {
	e.mu.Lock()
	e.started = true
	logger := e.logger
	e.mu.Unlock()

	if logger != nil {
		logger.Info("echo component started")
	}
}

// ProcessPacket replies to chat and normal messages.
func (e *Echo) ProcessPacket(p *xmpp.Packet) {
	e.received.Add(1)

	if p.Kind() != xmpp.KindMessage || p.Type == "error" {
		return
	}
	body := p.Body()
	if body == "" {
		return
	}

	e.mu.RLock()
	mgr, jid, logger := e.mgr, e.jid, e.logger
	e.mu.RUnlock()
	if mgr == nil {
		return
	}

	reply := p.Reply()
	if reply.From == "" {
		reply.From = jid.String()
	}

	if err := mgr.SendPacket(e, reply); err != nil {
		logger.Warn("failed to send echo reply", "to", reply.To, "error", err)
		return
	}
	e.replied.Add(1)
}

func (e *Echo) Shutdown() {
	e.mu.Lock()
	e.started = false
	logger := e.logger
	e.mu.Unlock()

	if logger != nil {
		logger.Info("echo component stopped")
	}
}

// Started reports whether the component is between Start and Shutdown.
func (e *Echo) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Stats returns the number of packets received and replies sent.
func (e *Echo) Stats() (received, replied int64) {
	return e.received.Load(), e.replied.Load()
}
