package manager

import (
	"fmt"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/metrics"
	"github.com/rickgao/whack/internal/xmpp"
)

// SendPacket writes p on the connection carrying c. Packets from one
// component are written in call order.
func (m *Manager) SendPacket(c component.Component, p *xmpp.Packet) error {
	if p == nil {
		return ErrInvalidPacket
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	if !isComparable(c) {
		m.metrics.SendErrors.WithLabelValues(metrics.ReasonUnknownComponent).Inc()
		return ErrUnknownComponent
	}

	e, conn, ok := m.reg.route(c)
	if !ok {
		m.metrics.SendErrors.WithLabelValues(metrics.ReasonUnknownComponent).Inc()
		return fmt.Errorf("%w: %s", ErrUnknownComponent, c.Name())
	}

	if err := conn.Send(p); err != nil {
		m.metrics.SendErrors.WithLabelValues(metrics.ReasonWrite).Inc()
		return fmt.Errorf("send to %s: %w", e.subdomain, err)
	}

	m.metrics.PacketsSent.WithLabelValues(e.subdomain).Inc()
	return nil
}
