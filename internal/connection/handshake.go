package connection

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/rickgao/whack/internal/auth"
	"github.com/rickgao/whack/internal/xmpp"
)

const streamOpen = "<?xml version='1.0'?>" +
	"<stream:stream xmlns='" + xmpp.ComponentNamespace + "' xmlns:stream='" + NamespaceStream + "' to='%s'>"

const streamClose = "</stream:stream>"

// openStream writes the stream header for the component address `to`.
func openStream(w io.Writer, to string) error {
	var esc bytes.Buffer
	if err := xml.EscapeText(&esc, []byte(to)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, streamOpen, esc.String())
	return err
}

// handshake opens the stream, reads the server's stream id, and
// authenticates with the secret. dec must read from rw.
func handshake(rw io.ReadWriter, dec *xml.Decoder, to, secret string) (streamID string, err error) {
	if err := openStream(rw, to); err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}

	streamID, err = readStreamHeader(dec)
	if err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(rw, "<handshake>%s</handshake>", auth.HandshakeDigest(streamID, secret)); err != nil {
		return "", fmt.Errorf("send handshake: %w", err)
	}

	start, err := nextStart(dec)
	if err != nil {
		return "", fmt.Errorf("read handshake response: %w", err)
	}

	switch {
	case start.Name.Local == "handshake":
		if err := dec.Skip(); err != nil {
			return "", fmt.Errorf("read handshake response: %w", err)
		}
		return streamID, nil
	case isStreamError(start):
		return "", fmt.Errorf("%w: %s", ErrHandshakeRejected, readStreamError(dec, start))
	default:
		return "", fmt.Errorf("%w: unexpected <%s/> during handshake", ErrProtocol, start.Name.Local)
	}
}

// readStreamHeader consumes tokens up to the server's <stream:stream> and
// returns its id attribute.
func readStreamHeader(dec *xml.Decoder) (string, error) {
	start, err := nextStart(dec)
	if err != nil {
		return "", fmt.Errorf("read stream header: %w", err)
	}
	if start.Name.Space != NamespaceStream || start.Name.Local != "stream" {
		return "", fmt.Errorf("%w: expected stream header, got <%s/>", ErrProtocol, start.Name.Local)
	}

	for _, attr := range start.Attr {
		if attr.Name.Local == "id" && attr.Name.Space == "" && attr.Value != "" {
			return attr.Value, nil
		}
	}
	return "", fmt.Errorf("%w: stream header without id", ErrProtocol)
}

// nextStart returns the next start element, skipping prolog, whitespace and comments.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.EndElement:
			return xml.StartElement{}, ErrStreamClosed
		}
	}
}

func isStreamError(start xml.StartElement) bool {
	return start.Name.Space == NamespaceStream && start.Name.Local == "error"
}

// readStreamError decodes a <stream:error/> and returns its condition name.
func readStreamError(dec *xml.Decoder, start xml.StartElement) string {
	var se struct {
		Conditions []struct {
			XMLName xml.Name
		} `xml:",any"`
		Text string `xml:"text"`
	}
	if err := dec.DecodeElement(&se, &start); err != nil {
		return "undefined-condition"
	}

	for _, c := range se.Conditions {
		if c.XMLName.Local != "text" {
			if se.Text != "" {
				return c.XMLName.Local + " (" + se.Text + ")"
			}
			return c.XMLName.Local
		}
	}
	return "undefined-condition"
}
