package manager

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rickgao/whack/internal/auth"
	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/connection"
	"github.com/rickgao/whack/internal/xmpp"
)

// acceptServer is a minimal XEP-0114 server used to drive real connections.
type acceptServer struct {
	secret   string
	streamID string
	streams  chan net.Conn     // authenticated streams
	received chan *xmpp.Packet // stanzas sent by components
}

func startAcceptServer(t *testing.T, secret string) (*acceptServer, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := &acceptServer{
		secret:   secret,
		streamID: "3BF96D75",
		streams:  make(chan net.Conn, 4),
		received: make(chan *xmpp.Packet, 16),
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()

	return s, ln.Addr().(*net.TCPAddr).Port
}

func (s *acceptServer) serve(conn net.Conn) {
	defer conn.Close()
	dec := xml.NewDecoder(conn)

	if _, err := nextElement(dec); err != nil {
		return
	}
	fmt.Fprintf(conn, "<stream:stream xmlns:stream='%s' xmlns='%s' id='%s'>",
		connection.NamespaceStream, xmpp.ComponentNamespace, s.streamID)

	start, err := nextElement(dec)
	if err != nil || start.Name.Local != "handshake" {
		return
	}
	var h struct {
		Digest string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&h, &start); err != nil {
		return
	}
	if !auth.VerifyDigest(s.streamID, s.secret, h.Digest) {
		fmt.Fprintf(conn, "<stream:error><not-authorized xmlns='%s'/></stream:error></stream:stream>", connection.NamespaceStreams)
		return
	}
	io.WriteString(conn, "<handshake/>")
	s.streams <- conn

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
			return
		}
	}
}

func nextElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func newExternalManager(t *testing.T, port int) *Manager {
	t.Helper()

	cfg := DefaultConfig("localhost")
	cfg.Port = port
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.Connection.KeepAliveInterval = 0

	m, err := New(cfg, WithDialer(connection.TCPDialer{Host: "127.0.0.1", Timeout: time.Second}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestExternal_EchoRoundTrip(t *testing.T) {
	srv, port := startAcceptServer(t, "secret1")
	m := newExternalManager(t, port)
	m.SetDefaultSecretKey("secret1")

	echo := component.NewEcho()
	if err := m.AddComponent(context.Background(), "echo", echo); err != nil {
		t.Fatalf("AddComponent failed: %v", err)
	}
	if !echo.Started() {
		t.Error("echo component not started")
	}

	var stream net.Conn
	select {
	case stream = <-srv.streams:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw an authenticated stream")
	}

	io.WriteString(stream, "<message from='alice@localhost/home' to='echo.localhost' type='chat' id='m1'><body>ping</body></message>")

	select {
	case p := <-srv.received:
		if p.To != "alice@localhost/home" || p.From != "echo.localhost" {
			t.Errorf("reply addressed %s -> %s, want echo.localhost -> alice@localhost/home", p.From, p.To)
		}
		if p.Body() != "ping" {
			t.Errorf("reply body = %q, want %q", p.Body(), "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo reply")
	}

	if err := m.RemoveComponent("echo"); err != nil {
		t.Fatalf("RemoveComponent failed: %v", err)
	}
	if echo.Started() {
		t.Error("echo component still started after removal")
	}
	if err := m.SendPacket(echo, testMessage(t, "late")); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("SendPacket after removal error = %v, want ErrUnknownComponent", err)
	}
}

func TestExternal_WrongSecret(t *testing.T) {
	_, port := startAcceptServer(t, "secret1")
	m := newExternalManager(t, port)
	m.SetSecretKey("chat", "wrong")

	err := m.AddComponent(context.Background(), "chat", component.NewEcho())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("AddComponent error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, connection.ErrHandshakeRejected) {
		t.Errorf("AddComponent error = %v, want wrapped ErrHandshakeRejected", err)
	}
	if _, ok := m.Lookup("chat"); ok {
		t.Error("Lookup(chat) found after rejected handshake")
	}
}

func TestExternal_ServerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := newExternalManager(t, port)
	err = m.AddComponent(context.Background(), "chat", component.NewEcho())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("AddComponent error = %v, want ErrConnectionFailed", err)
	}
}
