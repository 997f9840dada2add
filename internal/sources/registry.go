package sources

import (
	"sort"
	"sync"
)

// Registry maps provider names to SourceClient implementations. The fetch
// cascade resolves a category's provider hierarchy against it by name. It
// is populated once at startup and safe for concurrent reads thereafter.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]SourceClient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]SourceClient),
	}
}

// Register adds a client under its source type name, replacing any client
// already registered under that name.
func (r *Registry) Register(client SourceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[string(client.SourceType())] = client
}

// Get returns the client registered under name. The second return is false
// when no client is registered or the registered client is disabled.
func (r *Registry) Get(name string) (SourceClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]
	if !ok || !client.IsEnabled() {
		return nil, false
	}
	return client, true
}

// Names returns the sorted names of all registered clients, enabled or not.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledCount returns the number of registered clients reporting enabled.
func (r *Registry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, client := range r.clients {
		if client.IsEnabled() {
			n++
		}
	}
	return n
}
