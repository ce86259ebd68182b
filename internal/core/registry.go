package core

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

type session struct {
	username string
	seq      uint64
}

// Registry maps live connections to the username each one registered.
// Usernames are not unique: several connections may share one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Client]session
	seq      uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Client]session),
	}
}

// Register associates the client with username, replacing any earlier
// association for that client. A re-registering client keeps its position
// in the online list.
func (r *Registry) Register(c *Client, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[c]; exists {
		s.username = username
		r.sessions[c] = s
		return
	}
	r.seq++
	r.sessions[c] = session{username: username, seq: r.seq}
}

// Unregister removes the client. Returns true if it was registered.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[c]; !exists {
		return false
	}
	delete(r.sessions, c)
	return true
}

// Username returns the name registered on the client.
func (r *Registry) Username(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[c]
	return s.username, ok
}

// Find returns every client currently registered under username.
func (r *Registry) Find(username string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for c, s := range r.sessions {
		if s.username == username {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns the distinct registered usernames in registration order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	sessions := lo.Values(r.sessions)
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq < sessions[j].seq })
	return lo.Uniq(lo.Map(sessions, func(s session, _ int) string { return s.username }))
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
