package manager

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/connection"
)

// entryState tracks an entry through registration.
type entryState int

const (
	stateReserved  entryState = iota // Handshake not finished
	stateConnected                   // Authenticated, component initializing
	stateLive                        // Visible to Lookup
)

// entry is one row of the registry. Both maps point at the same entry.
type entry struct {
	subdomain string
	component component.Component
	conn      connection.Connection
	state     entryState
}

// registry is the two-way map between sub-domains and connections.
// Every mutation touches both views under mu.
type registry struct {
	mu          sync.RWMutex
	bySubdomain map[string]*entry
	byComponent map[component.Component]*entry
	closed      bool
}

func newRegistry() *registry {
	return &registry{
		bySubdomain: make(map[string]*entry),
		byComponent: make(map[component.Component]*entry),
	}
}

// normalizeSubdomain strips one trailing dot.
func normalizeSubdomain(s string) string {
	return strings.TrimSuffix(s, ".")
}

// isComparable reports whether c can be used as a map key. The dynamic
// value is checked: a struct type is comparable even when an interface
// field holds a slice.
func isComparable(c component.Component) bool {
	if c == nil {
		return false
	}
	return reflect.ValueOf(c).Comparable()
}

// reserve claims subdomain and c for a registration in progress.
func (r *registry) reserve(subdomain string, c component.Component) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := r.bySubdomain[subdomain]; ok {
		return nil, ErrSubdomainInUse
	}
	if _, ok := r.byComponent[c]; ok {
		return nil, ErrComponentInUse
	}

	e := &entry{subdomain: subdomain, component: c, state: stateReserved}
	r.bySubdomain[subdomain] = e
	r.byComponent[c] = e
	return e, nil
}

// attach records the authenticated connection so the component can send
// while it initializes.
func (r *registry) attach(e *entry, conn connection.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.conn = conn
	e.state = stateConnected
}

// commit makes e visible to Lookup. It fails if the registry was drained
// while the handshake ran.
func (r *registry) commit(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.deleteLocked(e)
		return ErrManagerClosed
	}
	e.state = stateLive
	return nil
}

// release drops a reservation that did not complete.
func (r *registry) release(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(e)
}

func (r *registry) deleteLocked(e *entry) {
	if r.bySubdomain[e.subdomain] == e {
		delete(r.bySubdomain, e.subdomain)
	}
	if r.byComponent[e.component] == e {
		delete(r.byComponent, e.component)
	}
}

// remove takes a live entry out of both views.
func (r *registry) remove(subdomain string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bySubdomain[subdomain]
	if !ok || e.state != stateLive {
		return nil, false
	}
	r.deleteLocked(e)
	return e, true
}

// drain closes the registry and removes every live entry. Reservations in
// flight are rejected at commit.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	var live []*entry
	for _, e := range r.bySubdomain {
		if e.state == stateLive {
			live = append(live, e)
		}
	}
	for _, e := range live {
		r.deleteLocked(e)
	}
	return live
}

// lookup returns the live connection for subdomain.
func (r *registry) lookup(subdomain string) (connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.bySubdomain[subdomain]
	if !ok || e.state != stateLive {
		return nil, false
	}
	return e.conn, true
}

// lookupComponent returns the live connection for c.
func (r *registry) lookupComponent(c component.Component) (connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byComponent[c]
	if !ok || e.state != stateLive {
		return nil, false
	}
	return e.conn, true
}

// route returns the connection packets from c go out on, including one
// whose registration is still initializing.
func (r *registry) route(c component.Component) (*entry, connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byComponent[c]
	if !ok || e.state == stateReserved {
		return nil, nil, false
	}
	return e, e.conn, true
}

// subdomains lists live sub-domains, sorted.
func (r *registry) subdomains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bySubdomain))
	for s, e := range r.bySubdomain {
		if e.state == stateLive {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// counts returns the number of live and in-flight entries.
func (r *registry) counts() (live, pending int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.bySubdomain {
		if e.state == stateLive {
			live++
		} else {
			pending++
		}
	}
	return live, pending
}

func (r *registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
