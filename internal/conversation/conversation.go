// Package conversation keeps short-term dialogue history per session.
// History is a fixed-capacity ring: pushing beyond capacity evicts the
// oldest turn, so memory per session stays bounded no matter how long a
// conversation runs.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of turns kept per session.
const DefaultCapacity = 10

// previewLen caps the answer text carried into Recent snippets.
const previewLen = 200

// Turn is one question/answer exchange.
type Turn struct {
	Question   string
	Answer     string
	Sources    []string
	Confidence int
	Timestamp  time.Time
}

// History is a bounded ring of turns for one session. The zero value is
// not usable; use NewHistory.
//
// History is safe for concurrent use by multiple goroutines.
type History struct {
	mu    sync.Mutex
	turns []Turn // ring storage, len == capacity once full
	head  int    // index of the next write slot
	size  int
}

// NewHistory creates a history retaining at most capacity turns.
// capacity <= 0 falls back to DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{turns: make([]Turn, capacity)}
}

// Push records a turn, evicting the oldest when the ring is full.
// Push is O(1).
func (h *History) Push(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns[h.head] = t
	h.head = (h.head + 1) % len(h.turns)
	if h.size < len(h.turns) {
		h.size++
	}
}

// Recent returns up to n turns, newest first, with answers truncated to a
// short preview. n <= 0 returns all retained turns.
func (h *History) Recent(n int) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]Turn, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.head - i + len(h.turns)) % len(h.turns)
		t := h.turns[idx]
		t.Answer = preview(t.Answer)
		out = append(out, t)
	}
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Clear discards all retained turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.turns)
	h.head = 0
	h.size = 0
}

// preview truncates s to previewLen runes with an ellipsis.
func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return strings.TrimSpace(string(runes[:previewLen])) + "..."
}

// Format renders turns as context for the model, oldest first so the
// dialogue reads in natural order. Returns "" when turns is empty.
func Format(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Question, t.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Registry hands out per-session histories, creating them on first use.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*History
}

// NewRegistry creates a registry whose histories retain capacity turns
// each. capacity <= 0 falls back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		sessions: make(map[string]*History),
	}
}

// Session returns the history for sessionID, creating it if needed.
func (r *Registry) Session(sessionID string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.sessions[sessionID]
	if !ok {
		h = NewHistory(r.capacity)
		r.sessions[sessionID] = h
	}
	return h
}

// Drop removes a session's history entirely.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
