package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/event"
)

const (
	defaultTypingDebounce = 2500 * time.Millisecond
	defaultTypingIdle     = 4 * time.Second
	defaultTypingExpiry   = 6 * time.Second
)

// TypingCoordinator turns local keystrokes into rate-limited start/stop
// signals and turns inbound typing events into per-conversation sets of
// currently-typing users with automatic expiry. The per-(conversation, user)
// state machine is just idle -> typing -> idle.
type TypingCoordinator struct {
	mu sync.Mutex

	// emit sends a typing signal upstream; wired to the connection by the
	// session. Never nil after wiring; guarded for tests.
	emit func(eventName, conversationID string)

	debounce time.Duration
	idle     time.Duration
	expiry   time.Duration

	lastSent   map[string]time.Time
	idleTimers map[string]*time.Timer

	remote map[string]map[string]*time.Timer // conversation -> user -> expiry timer

	closed bool
}

func NewTypingCoordinator(debounce, idle, expiry time.Duration) *TypingCoordinator {
	if debounce <= 0 {
		debounce = defaultTypingDebounce
	}
	if idle <= 0 {
		idle = defaultTypingIdle
	}
	if expiry <= 0 {
		expiry = defaultTypingExpiry
	}
	return &TypingCoordinator{
		debounce:   debounce,
		idle:       idle,
		expiry:     expiry,
		lastSent:   make(map[string]time.Time),
		idleTimers: make(map[string]*time.Timer),
		remote:     make(map[string]map[string]*time.Timer),
	}
}

// SetEmitter wires the outbound signal path.
func (t *TypingCoordinator) SetEmitter(emit func(eventName, conversationID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit = emit
}

// LocalStart registers local keystroke activity. A start signal goes out at
// most once per debounce window; a stop is scheduled automatically if the
// keystrokes dry up.
func (t *TypingCoordinator) LocalStart(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	now := time.Now()
	if last, ok := t.lastSent[conversationID]; !ok || now.Sub(last) >= t.debounce {
		t.lastSent[conversationID] = now
		if t.emit != nil {
			t.emit(event.EventTypingStart, conversationID)
		}
	}

	if timer, ok := t.idleTimers[conversationID]; ok {
		timer.Stop()
	}
	t.idleTimers[conversationID] = time.AfterFunc(t.idle, func() {
		t.LocalStop(conversationID)
	})
}

// LocalStop emits a stop signal and resets the debounce state. Safe to call
// when no start was ever sent.
func (t *TypingCoordinator) LocalStop(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if timer, ok := t.idleTimers[conversationID]; ok {
		timer.Stop()
		delete(t.idleTimers, conversationID)
	}
	if _, started := t.lastSent[conversationID]; !started {
		return
	}
	delete(t.lastSent, conversationID)
	if t.emit != nil {
		t.emit(event.EventTypingStop, conversationID)
	}
}

// RemoteStart inserts a peer into the conversation's typing set with a fresh
// expiry. The expiry is the safety net for a lost stop signal: the user drops
// out of the set even if no further event ever arrives.
func (t *TypingCoordinator) RemoteStart(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	users, ok := t.remote[conversationID]
	if !ok {
		users = make(map[string]*time.Timer)
		t.remote[conversationID] = users
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
	}
	users[userID] = time.AfterFunc(t.expiry, func() {
		t.RemoteStop(conversationID, userID)
	})
}

// RemoteStop removes a peer from the typing set immediately.
func (t *TypingCoordinator) RemoteStop(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.remote[conversationID]
	if !ok {
		return
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(t.remote, conversationID)
	}
}

// Typists returns the users currently typing in a conversation, sorted.
func (t *TypingCoordinator) Typists(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.remote[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Forget drops every typing record for a conversation. Called when the
// conversation is left; typing state never outlives the room subscription.
func (t *TypingCoordinator) Forget(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.idleTimers[conversationID]; ok {
		timer.Stop()
		delete(t.idleTimers, conversationID)
	}
	delete(t.lastSent, conversationID)
	for _, timer := range t.remote[conversationID] {
		timer.Stop()
	}
	delete(t.remote, conversationID)
}

// Close stops all timers; no signals are emitted after Close.
func (t *TypingCoordinator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, timer := range t.idleTimers {
		timer.Stop()
	}
	t.idleTimers = make(map[string]*time.Timer)
	for _, users := range t.remote {
		for _, timer := range users {
			timer.Stop()
		}
	}
	t.remote = make(map[string]map[string]*time.Timer)
}
