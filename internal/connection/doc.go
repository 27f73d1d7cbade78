// Package connection implements the link between one component and the server.
//
// A connection:
//   - Dials the server through a Dialer (TCP or WebSocket)
//   - Performs the XEP-0114 handshake for its sub-domain
//   - Feeds inbound stanzas to its component from a read loop
//   - Serializes outbound stanzas onto the stream
//   - Sends whitespace keepalives while idle
package connection
