package xmpp

import (
	"encoding/xml"
	"errors"
)

// Stanza names.
const (
	KindMessage  = "message"
	KindPresence = "presence"
	KindIQ       = "iq"
)

// ComponentNamespace is the default namespace of a component stream (XEP-0114).
const ComponentNamespace = "jabber:component:accept"

// ErrUnknownKind is returned for stanzas other than message, presence, or iq.
var ErrUnknownKind = errors.New("unknown stanza kind")

// Packet is a top-level stanza. Inner holds the raw child elements.
type Packet struct {
	XMLName xml.Name
	ID      string `xml:"id,attr,omitempty"`
	From    string `xml:"from,attr,omitempty"`
	To      string `xml:"to,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Inner   []byte `xml:",innerxml"`
}

// NewMessage builds a message stanza with a plain-text body.
func NewMessage(from, to JID, msgType, body string) (*Packet, error) {
	p := newPacket(KindMessage, from, to, msgType)
	if body != "" {
		inner, err := xml.Marshal(struct {
			XMLName xml.Name `xml:"body"`
			Text    string   `xml:",chardata"`
		}{Text: body})
		if err != nil {
			return nil, err
		}
		p.Inner = inner
	}
	return p, nil
}

// NewPresence builds a presence stanza.
func NewPresence(from, to JID, presenceType string) *Packet {
	return newPacket(KindPresence, from, to, presenceType)
}

// NewIQ builds an iq stanza with the given id and raw payload.
func NewIQ(from, to JID, iqType, id string, payload []byte) *Packet {
	p := newPacket(KindIQ, from, to, iqType)
	p.ID = id
	p.Inner = payload
	return p
}

func newPacket(kind string, from, to JID, typ string) *Packet {
	p := &Packet{
		XMLName: xml.Name{Local: kind},
		Type:    typ,
	}
	if !from.IsZero() {
		p.From = from.String()
	}
	if !to.IsZero() {
		p.To = to.String()
	}
	return p
}

// Kind returns the stanza name (message, presence, iq).
func (p *Packet) Kind() string {
	return p.XMLName.Local
}

// Validate checks the stanza kind.
func (p *Packet) Validate() error {
	switch p.Kind() {
	case KindMessage, KindPresence, KindIQ:
		return nil
	}
	return ErrUnknownKind
}

// Reply returns a copy addressed back to the sender, keeping id and type.
func (p *Packet) Reply() *Packet {
	r := &Packet{
		XMLName: xml.Name{Local: p.Kind()},
		ID:      p.ID,
		From:    p.To,
		To:      p.From,
		Type:    p.Type,
	}
	if p.Inner != nil {
		r.Inner = append([]byte(nil), p.Inner...)
	}
	return r
}

// Body extracts the text of a <body/> child, if any.
func (p *Packet) Body() string {
	var m struct {
		Body string `xml:"body"`
	}
	if len(p.Inner) == 0 {
		return ""
	}
	wrapped := make([]byte, 0, len(p.Inner)+7)
	wrapped = append(wrapped, "<x>"...)
	wrapped = append(wrapped, p.Inner...)
	wrapped = append(wrapped, "</x>"...)
	if err := xml.Unmarshal(wrapped, &m); err != nil {
		return ""
	}
	return m.Body
}

// Marshal encodes the stanza without a namespace declaration.
func (p *Packet) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := *p
	out.XMLName = xml.Name{Local: p.Kind()}
	return xml.Marshal(&out)
}
