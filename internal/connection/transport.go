package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TCPDialer opens plain TCP streams.
type TCPDialer struct {
	Host      string        // Dial this host instead of the server domain (optional)
	Timeout   time.Duration // Dial timeout (0 = none beyond ctx)
	KeepAlive time.Duration // TCP keepalive period (0 = OS default)
}

// Dial connects to host:port, or to d.Host:port when set.
func (d TCPDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	if d.Host != "" {
		host = d.Host
	}
	nd := net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: d.KeepAlive,
	}
	return nd.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// WebSocketSubprotocol is offered during the WebSocket upgrade.
const WebSocketSubprotocol = "xmpp"

// WebSocketDialer tunnels the component stream through a WebSocket. Each
// write becomes one text frame; frames are read back as one continuous stream.
type WebSocketDialer struct {
	URL              string        // Full ws:// or wss:// URL (optional, default ws://host:port/)
	HandshakeTimeout time.Duration // Upgrade timeout
	Header           http.Header   // Extra upgrade headers
}

// Dial performs the WebSocket upgrade and returns the tunnel as a net.Conn.
func (d WebSocketDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	url := d.URL
	if url == "" {
		url = fmt.Sprintf("ws://%s/", net.JoinHostPort(host, strconv.Itoa(port)))
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{WebSocketSubprotocol},
	}

	ws, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	return newWSConn(ws), nil
}

// wsConn adapts a WebSocket to net.Conn.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
