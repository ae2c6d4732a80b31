// Package registry maps target service identifiers to backend base URLs.
// The registry is a plain address book: it does not health-check its
// entries or verify that a registered service is actually running.
package registry

import (
	"sort"
	"strings"
	"sync"
)

type Registry struct {
	services map[string]string
	mu       sync.RWMutex
}

// New creates a registry from a name-to-base-URL map, normally the
// Services section of the gateway configuration. The map is copied.
func New(services map[string]string) *Registry {
	r := &Registry{services: make(map[string]string, len(services))}
	for name, baseURL := range services {
		r.services[name] = strings.TrimRight(baseURL, "/")
	}
	return r
}

// Register adds or replaces a service address.
func (r *Registry) Register(name, baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = strings.TrimRight(baseURL, "/")
}

// Lookup returns the base URL for a service identifier.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	baseURL, exists := r.services[name]
	return baseURL, exists
}

// Names returns the registered service identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
