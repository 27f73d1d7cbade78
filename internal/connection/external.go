package connection

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/xmpp"
)

// External is an XEP-0114 connection for one component.
type External struct {
	cfg       Config
	component component.Component
	logger    *slog.Logger
	id        string

	conn     net.Conn
	dec      *xml.Decoder
	streamID string
	jid      xmpp.JID

	// Write serialization
	writeMu sync.Mutex

	// State
	mu          sync.RWMutex
	connected   bool
	initialized bool
	closed      bool
	done        chan struct{}
	readDone    chan struct{}
}

// NewExternal creates an unconnected connection wrapping c.
func NewExternal(c component.Component, cfg Config, logger *slog.Logger) *External {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &External{
		cfg:       cfg,
		component: c,
		logger:    logger.With("conn_id", id),
		id:        id,
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
	}
}

func (e *External) ID() string                     { return e.id }
func (e *External) Component() component.Component { return e.component }

// JID returns the address assigned by Initialize.
func (e *External) JID() xmpp.JID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.jid
}

// StreamID returns the id the server assigned to the stream.
func (e *External) StreamID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.streamID
}

// IsConnected returns the current connection state.
func (e *External) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Connect dials the server and authenticates subdomain. An empty secret is
// sent as-is; the server is expected to reject it.
func (e *External) Connect(ctx context.Context, domain string, port int, dialer Dialer, subdomain, secret string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrAlreadyClosed
	}
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.mu.Unlock()

	conn, err := dialer.Dial(ctx, domain, port)
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", domain, port, err)
	}

	// Unblock the handshake if ctx ends first.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})

	to := xmpp.ComponentJID(subdomain, domain).String()
	dec := xml.NewDecoder(conn)
	streamID, err := handshake(conn, dec, to, secret)

	if !stop() {
		conn.Close()
		return fmt.Errorf("handshake %s: %w", to, context.Cause(ctx))
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake %s: %w", to, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	e.conn = conn
	e.dec = dec
	e.streamID = streamID
	e.connected = true
	e.mu.Unlock()

	e.logger.Debug("component authenticated", "to", to, "stream_id", streamID)

	return nil
}

// Initialize passes the address to the component, starts it, then starts
// the read loop and keepalives.
func (e *External) Initialize(jid xmpp.JID, mgr component.Manager) error {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return ErrNotConnected
	}
	if e.initialized {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	e.jid = jid
	e.mu.Unlock()

	if err := e.component.Initialize(jid, mgr); err != nil {
		return fmt.Errorf("initialize component %s: %w", e.component.Name(), err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		// Shutdown ran while the component initialized and skipped it.
		e.component.Shutdown()
		return ErrAlreadyClosed
	}
	e.initialized = true
	e.mu.Unlock()

	e.component.Start()

	go e.readLoop()
	if e.cfg.KeepAliveInterval > 0 {
		go e.keepAliveLoop()
	}

	e.logger.Info("component initialized", "jid", jid.String(), "component", e.component.Name())

	return nil
}

// Send writes a stanza. Concurrent sends are serialized in call order.
func (e *External) Send(p *xmpp.Packet) error {
	e.mu.RLock()
	if !e.connected {
		e.mu.RUnlock()
		return ErrNotConnected
	}
	conn := e.conn
	e.mu.RUnlock()

	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("marshal stanza: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write stanza: %w", err)
	}
	return nil
}

// Shutdown closes the stream and calls the component's Shutdown if it was
// initialized. Later calls return nil.
func (e *External) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.connected = false
	initialized := e.initialized
	conn := e.conn
	e.mu.Unlock()

	close(e.done)

	var err error
	if conn != nil {
		e.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		io.WriteString(conn, streamClose)
		e.writeMu.Unlock()

		err = conn.Close()
	}

	if initialized {
		e.component.Shutdown()
	} else {
		close(e.readDone)
	}

	e.logger.Info("connection shut down", "component", e.component.Name())

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed once Shutdown starts.
func (e *External) Done() <-chan struct{} {
	return e.done
}

// ReadDone is closed when the read loop exits.
func (e *External) ReadDone() <-chan struct{} {
	return e.readDone
}

// readLoop decodes stanzas from the stream and hands them to the component.
func (e *External) readLoop() {
	defer close(e.readDone)
	defer func() {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
	}()

	for {
		tok, err := e.dec.Token()
		if err != nil {
			select {
			case <-e.done:
			default:
				e.logger.Warn("stream read failed", "error", err)
			}
			return
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if isStreamError(t) {
				e.logger.Warn("stream error from server", "condition", readStreamError(e.dec, t))
				return
			}

			var p xmpp.Packet
			if err := e.dec.DecodeElement(&p, &t); err != nil {
				e.logger.Warn("failed to decode stanza", "element", t.Name.Local, "error", err)
				return
			}
			if err := p.Validate(); err != nil {
				e.logger.Debug("ignoring element", "element", t.Name.Local)
				continue
			}

			e.component.ProcessPacket(&p)

		case xml.EndElement:
			e.logger.Info("stream closed by server")
			return
		}
	}
}

// keepAliveLoop sends a single space while the stream is open so idle
// streams are not dropped by the server or intermediaries.
func (e *External) keepAliveLoop() {
	ticker := time.NewTicker(e.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-e.readDone:
			return
		case <-ticker.C:
			e.mu.RLock()
			conn := e.conn
			e.mu.RUnlock()

			e.writeMu.Lock()
			if e.cfg.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
			}
			_, err := io.WriteString(conn, " ")
			e.writeMu.Unlock()

			if err != nil {
				e.logger.Debug("failed to send keepalive", "error", err)
			}
		}
	}
}
