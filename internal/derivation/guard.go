package derivation

import (
	"fmt"
	"sync"
)

// DuplicateEventError rejects an exact redelivery of an already handled
// source key. It maps to a client-class failure; the guard's job is to
// reject, not queue.
type DuplicateEventError struct {
	Key string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("the file %s is already processed", e.Key)
}

// Guard is the process-wide set of source keys already handled. It is a
// best-effort, non-persistent dedup for the lifetime of one worker; durable
// dedup belongs to the delivery layer.
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// HasProcessed reports whether the key was marked before.
func (g *Guard) HasProcessed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[key]
	return ok
}

// MarkProcessed records the key.
func (g *Guard) MarkProcessed(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[key] = struct{}{}
}

// MarkIfNew atomically checks and marks, so that at most one of any set of
// concurrent callers for the same key observes true.
func (g *Guard) MarkIfNew(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// Reset clears the set. Intended for tests.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
}
