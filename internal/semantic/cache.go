package semantic

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

// fingerprintResponseLen bounds how much of the response feeds the cache
// key. Two responses that agree on their first 200 characters are treated
// as the same evaluation target.
const fingerprintResponseLen = 200

// Fingerprint derives the cache key for a step evaluation.
func Fingerprint(stepID, userMessage, response string) string {
	if len(response) > fingerprintResponseLen {
		response = response[:fingerprintResponseLen]
	}

	h := sha256.New()
	writeString(h, stepID)
	writeString(h, userMessage)
	writeString(h, response)
	return hex.EncodeToString(h.Sum(nil))
}

// writeString writes with a null byte delimiter to prevent hash collisions
// between adjacent fields.
func writeString(w io.Writer, s string) {
	fmt.Fprintf(w, "%s\x00", s) //nolint:errcheck
}

type cacheEntry struct {
	key     string
	eval    models.SemanticEvaluation
	expires time.Time
}

// evalCache is a bounded TTL cache shared across concurrently running
// conversations. Eviction removes the oldest inserted entry first.
type evalCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List

	// now is replaceable in tests.
	now func() time.Time
}

func newEvalCache(max int, ttl time.Duration) *evalCache {
	return &evalCache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *evalCache) get(key string) (models.SemanticEvaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return models.SemanticEvaluation{}, false
	}

	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return models.SemanticEvaluation{}, false
	}

	return entry.eval, true
}

func (c *evalCache) put(key string, eval models.SemanticEvaluation) {
	if c.max <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.eval = eval
		entry.expires = c.now().Add(c.ttl)
		return
	}

	el := c.order.PushBack(&cacheEntry{key: key, eval: eval, expires: c.now().Add(c.ttl)})
	c.entries[key] = el

	for len(c.entries) > c.max {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *evalCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
