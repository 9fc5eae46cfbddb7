package chatclient

import (
	"sort"
	"sync"
)

// PresenceTracker maintains the set of currently-online user ids. Membership
// is an idempotent toggle, not a reference count. On a connection drop the
// contents go stale on purpose: they are kept until the post-reconnect
// presence snapshot or an explicit offline event replaces them, which avoids
// presence flicker during brief reconnects.
type PresenceTracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// Add marks a user online. Adding twice is the same as adding once.
func (p *PresenceTracker) Add(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = struct{}{}
}

// Remove marks a user offline. Removing an absent user is a no-op.
func (p *PresenceTracker) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
}

// Replace installs an authoritative snapshot, discarding stale state.
func (p *PresenceTracker) Replace(userIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		p.online[id] = struct{}{}
	}
}

// IsOnline reports whether the user has a live connection, as far as the
// tracker knows.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Snapshot returns the online set, sorted for determinism.
func (p *PresenceTracker) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
