package notifier

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"hwbot/internal/transport"
)

// dedupCache remembers recently sent notifications until their window ends.
type dedupCache struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newDedupCache() *dedupCache { return &dedupCache{until: map[string]time.Time{}} }

// dedupKey identifies a notification by kind, chat and text.
func dedupKey(n transport.Notification) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d:%d|%s", n.Kind, n.Target.ChatID, n.Target.ThreadID, n.Text)
	return fmt.Sprintf("%016x", h.Sum64())
}

// allow reports whether key may be sent now and, if so, suppresses it for
// window. At most limit keys are kept; the soonest to expire go first.
func (c *dedupCache) allow(key string, window time.Duration, limit int, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.until[key]; ok && now.Before(t) {
		return false
	}
	c.until[key] = now.Add(window)

	for k, t := range c.until {
		if !now.Before(t) {
			delete(c.until, k)
		}
	}
	for limit > 0 && len(c.until) > limit {
		c.evictOldest()
	}
	return true
}

func (c *dedupCache) evictOldest() {
	var oldest string
	var at time.Time
	for k, t := range c.until {
		if oldest == "" || t.Before(at) {
			oldest, at = k, t
		}
	}
	delete(c.until, oldest)
}

func (c *dedupCache) forget(key string) {
	c.mu.Lock()
	delete(c.until, key)
	c.mu.Unlock()
}

func (c *dedupCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.until)
}
