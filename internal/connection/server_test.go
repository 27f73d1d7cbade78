package connection

import (
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/whack/internal/auth"
	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/xmpp"
)

// serverBehavior controls how the fake server answers a component.
type serverBehavior int

const (
	behaveAccept serverBehavior = iota
	behaveNoID
	behaveSilent
	behaveBadElement
)

// fakeServer plays the server side of XEP-0114.
type fakeServer struct {
	t        *testing.T
	secret   string
	streamID string
	behavior serverBehavior

	mu       sync.Mutex
	to       []string
	conns    []net.Conn
	received chan *xmpp.Packet
	closed   chan struct{} // one value per stream closed by the component
}

func newFakeServer(t *testing.T, secret string) *fakeServer {
	return &fakeServer{
		t:        t,
		secret:   secret,
		streamID: "stream-1",
		received: make(chan *xmpp.Packet, 100),
		closed:   make(chan struct{}, 10),
	}
}

// listenTCP serves the fake server on a loopback listener and returns its port.
func (s *fakeServer) listenTCP() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("listen: %v", err)
	}
	s.t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

// listenWebSocket serves the fake server behind a WebSocket upgrade.
func (s *fakeServer) listenWebSocket() *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{WebSocketSubprotocol},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.t.Logf("upgrade error: %v", err)
			return
		}
		s.serve(newWSConn(ws))
	}))
	s.t.Cleanup(server.Close)

	return server
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	dec := xml.NewDecoder(conn)
	start, err := nextStart(dec)
	if err != nil {
		return
	}
	for _, a := range start.Attr {
		if a.Name.Local == "to" {
			s.mu.Lock()
			s.to = append(s.to, a.Value)
			s.mu.Unlock()
		}
	}

	switch s.behavior {
	case behaveSilent:
		io.Copy(io.Discard, conn)
		return
	case behaveNoID:
		fmt.Fprintf(conn, "<?xml version='1.0'?><stream:stream xmlns:stream='%s' xmlns='%s'>", NamespaceStream, xmpp.ComponentNamespace)
	default:
		fmt.Fprintf(conn, "<?xml version='1.0'?><stream:stream xmlns:stream='%s' xmlns='%s' id='%s'>", NamespaceStream, xmpp.ComponentNamespace, s.streamID)
	}

	start, err = nextStart(dec)
	if err != nil || start.Name.Local != "handshake" {
		return
	}
	var h struct {
		Digest string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&h, &start); err != nil {
		return
	}

	if s.behavior == behaveBadElement {
		io.WriteString(conn, "<success/>")
		return
	}
	if !auth.VerifyDigest(s.streamID, s.secret, h.Digest) {
		fmt.Fprintf(conn, "<stream:error><not-authorized xmlns='%s'/></stream:error></stream:stream>", NamespaceStreams)
		return
	}
	io.WriteString(conn, "<handshake/>")

	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var p xmpp.Packet
			if err := dec.DecodeElement(&p, &t); err != nil {
				return
			}
			s.received <- &p
		case xml.EndElement:
			s.closed <- struct{}{}
			return
		}
	}
}

// push writes a raw stanza to the most recent component stream.
func (s *fakeServer) push(raw string) {
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	io.WriteString(conn, raw)
}

func (s *fakeServer) lastTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.to) == 0 {
		return ""
	}
	return s.to[len(s.to)-1]
}

// recordingComponent captures lifecycle calls and inbound packets.
type recordingComponent struct {
	mu            sync.Mutex
	jid           xmpp.JID
	initialized   int
	started       int
	shutdowns     int
	initErr       error
	onInit        func() // runs after a successful Initialize
	packets       chan *xmpp.Packet
	startedBefore bool // Start ran before the first packet
}

func newRecordingComponent() *recordingComponent {
	return &recordingComponent{packets: make(chan *xmpp.Packet, 100)}
}

func (c *recordingComponent) Name() string        { return "recorder" }
func (c *recordingComponent) Description() string { return "records packets" }

func (c *recordingComponent) Initialize(jid xmpp.JID, mgr component.Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initErr != nil {
		return c.initErr
	}
	c.jid = jid
	c.initialized++
	if c.onInit != nil {
		c.onInit()
	}
	return nil
}

func (c *recordingComponent) Start() {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func (c *recordingComponent) ProcessPacket(p *xmpp.Packet) {
	c.mu.Lock()
	if c.started > 0 {
		c.startedBefore = true
	}
	c.mu.Unlock()
	c.packets <- p
}

func (c *recordingComponent) Shutdown() {
	c.mu.Lock()
	c.shutdowns++
	c.mu.Unlock()
}

func (c *recordingComponent) counts() (initialized, started, shutdowns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized, c.started, c.shutdowns
}

func tcpDialer() TCPDialer {
	return TCPDialer{Host: "127.0.0.1", Timeout: 2 * time.Second}
}

func wsDialer(server *httptest.Server) WebSocketDialer {
	return WebSocketDialer{URL: "ws" + strings.TrimPrefix(server.URL, "http")}
}

func serverPort(server *httptest.Server) int {
	_, port, _ := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	n, _ := strconv.Atoi(port)
	return n
}

func waitPacket(t *testing.T, ch <-chan *xmpp.Packet) *xmpp.Packet {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for packet")
		return nil
	}
}
