package xmpp

import (
	"errors"
	"strings"
)

// Errors
var (
	ErrEmptyDomain = errors.New("jid: empty domain")
	ErrInvalidJID  = errors.New("jid: invalid")
)

// JID is an XMPP address.
type JID struct {
	Node     string
	Domain   string
	Resource string
}

// NewJID builds a JID from its parts. Domain is lowercased.
func NewJID(node, domain, resource string) JID {
	return JID{
		Node:     node,
		Domain:   strings.ToLower(domain),
		Resource: resource,
	}
}

// ComponentJID returns the address a component owns under domain:
// subdomain.domain with node and resource unset.
func ComponentJID(subdomain, domain string) JID {
	subdomain = strings.TrimSuffix(subdomain, ".")
	if subdomain == "" {
		return NewJID("", domain, "")
	}
	return NewJID("", subdomain+"."+domain, "")
}

// ParseJID parses node@domain/resource. Node and resource are optional.
func ParseJID(s string) (JID, error) {
	var j JID

	rest := s
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		j.Resource = rest[i+1:]
		rest = rest[:i]
		if j.Resource == "" {
			return JID{}, ErrInvalidJID
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		j.Node = rest[:i]
		rest = rest[i+1:]
		if j.Node == "" {
			return JID{}, ErrInvalidJID
		}
	}
	if rest == "" {
		return JID{}, ErrEmptyDomain
	}
	j.Domain = strings.ToLower(rest)

	return j, nil
}

// IsZero reports whether the JID is unset.
func (j JID) IsZero() bool {
	return j == JID{}
}

// Bare returns the JID without its resource.
func (j JID) Bare() JID {
	j.Resource = ""
	return j
}

// String formats the JID as node@domain/resource.
func (j JID) String() string {
	var b strings.Builder
	if j.Node != "" {
		b.WriteString(j.Node)
		b.WriteByte('@')
	}
	b.WriteString(j.Domain)
	if j.Resource != "" {
		b.WriteByte('/')
		b.WriteString(j.Resource)
	}
	return b.String()
}
