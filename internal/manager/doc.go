// Package manager attaches external components to an XMPP server.
//
// A Manager is bound to one server domain and port. It resolves the shared
// secret for each sub-domain, drives the connection handshake, keeps the
// two-way registry between sub-domains and live connections, and routes
// outbound packets by component identity.
//
// # Registration
//
// AddComponent reserves the sub-domain and the component before dialing, so
// a second registration for either fails fast with ErrSubdomainInUse or
// ErrComponentInUse instead of replacing the live connection. The handshake
// runs outside the registry lock and is bounded by Config.HandshakeTimeout.
// Any failure releases the reservation and leaves the registry as it was.
//
// # Routing
//
// SendPacket looks the component up by identity and writes through its
// connection. A component may send from its own Initialize or Start
// callbacks; the connection is routable once the handshake has completed,
// even though Lookup only reports it after registration commits.
package manager
