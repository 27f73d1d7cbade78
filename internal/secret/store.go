// Package secret resolves the shared secret a component presents when it
// authenticates a sub-domain with the server.
package secret

import (
	"sort"
	"sync"
)

// Store maps sub-domains to secret keys, with one default key for
// sub-domains that have none. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	keys       map[string]string
	defaultKey string
	hasDefault bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		keys: make(map[string]string),
	}
}

// Set stores key for subdomain, replacing any previous key.
func (s *Store) Set(subdomain, key string) {
	s.mu.Lock()
	s.keys[subdomain] = key
	s.mu.Unlock()
}

// SetDefault sets the key used by sub-domains without an explicit key.
func (s *Store) SetDefault(key string) {
	s.mu.Lock()
	s.defaultKey = key
	s.hasDefault = true
	s.mu.Unlock()
}

// Delete removes the explicit key for subdomain. The default key applies afterwards.
func (s *Store) Delete(subdomain string) {
	s.mu.Lock()
	delete(s.keys, subdomain)
	s.mu.Unlock()
}

// Get returns the explicit key for subdomain, else the default key.
// ok is false when neither is set.
func (s *Store) Get(subdomain string) (key string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.keys[subdomain]; ok {
		return key, true
	}
	if s.hasDefault {
		return s.defaultKey, true
	}
	return "", false
}

// Subdomains returns the sub-domains with an explicit key, sorted.
func (s *Store) Subdomains() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.keys))
	for sub := range s.keys {
		out = append(out, sub)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}
