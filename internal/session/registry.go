package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// Registry maps session IDs to bridge clients.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	clients map[string]*whatsapp.Client
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*whatsapp.Client),
	}
}

// Add registers a client under the given ID. When id is empty a UUID is
// generated. Returns the effective session ID.
func (r *Registry) Add(id string, client *whatsapp.Client) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.clients[id] = client

	return id, nil
}

// Get returns the client for a session ID.
func (r *Registry) Get(id string) (*whatsapp.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return client, nil
}

// Remove stops a session's listener and drops it from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	client, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	client.Stop()
	return nil
}

// IDs returns all session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll stops every session's listener and empties the registry.
// Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*whatsapp.Client)
	r.mu.Unlock()

	for _, client := range clients {
		client.Stop()
	}
}
