package server

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	stateTTL  = 15 * time.Minute
	maxStates = 1000
)

// stateCache holds the OAuth states handed out by the index page. A state can
// only be consumed once and expires after ttl. When full the oldest state is
// evicted.
type stateCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	max    int
	now    func() time.Time
	expiry map[string]time.Time
	// order is oldest first and may contain states that were already consumed
	order []string
}

func newStateCache(ttl time.Duration, max int) *stateCache {
	return &stateCache{
		ttl:    ttl,
		max:    max,
		now:    time.Now,
		expiry: make(map[string]time.Time),
	}
}

// issue returns a new random state.
func (c *stateCache) issue() string {
	state := strings.ReplaceAll(uuid.NewString(), "-", "")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	for len(c.expiry) >= c.max && len(c.order) > 0 {
		delete(c.expiry, c.order[0])
		c.order = c.order[1:]
	}
	c.expiry[state] = c.now().Add(c.ttl)
	c.order = append(c.order, state)
	return state
}

// consume returns true if state was issued and hasn't expired. The state is
// removed either way.
func (c *stateCache) consume(state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.expiry[state]
	if !ok {
		return false
	}
	delete(c.expiry, state)
	return c.now().Before(exp)
}

// len returns the number of outstanding states.
func (c *stateCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}

// pruneLocked drops expired and consumed states from the front of order.
func (c *stateCache) pruneLocked() {
	now := c.now()
	for len(c.order) > 0 {
		exp, ok := c.expiry[c.order[0]]
		if ok && now.Before(exp) {
			return
		}
		delete(c.expiry, c.order[0])
		c.order = c.order[1:]
	}
}
