// Package xmpp holds the addressing and stanza types exchanged between
// components and the server.
//
// It covers only what an external component needs:
//   - JIDs (node@domain/resource)
//   - top-level stanzas (message, presence, iq) with their routing attributes
//
// Stanza payloads are kept as raw inner XML; components parse them as they see fit.
package xmpp
