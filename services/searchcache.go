package services

import (
	"sync"
	"sync/atomic"
	"time"

	ds "github.com/oaiiae/contactbook/datastores"
)

// SearchCache holds the most recent search results consumed by exports.
// A scope identifies the caller (session or user) that ran the search.
type SearchCache interface {
	Store(scope string, results []*ds.Contact)
	Load(scope string) ([]*ds.Contact, bool)
	Len() int
}

// GlobalCache is a single slot shared by every scope: an export returns the
// latest search of any caller.
type GlobalCache struct {
	p atomic.Pointer[[]*ds.Contact]
}

func (c *GlobalCache) Store(_ string, results []*ds.Contact) { c.p.Store(&results) }

func (c *GlobalCache) Load(string) ([]*ds.Contact, bool) {
	p := c.p.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

func (c *GlobalCache) Len() int {
	if c.p.Load() == nil {
		return 0
	}
	return 1
}

// SessionCache keeps one result set per scope. Entries not refreshed within
// ttl are dropped.
type SessionCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]sessionEntry
}

type sessionEntry struct {
	results []*ds.Contact
	expires time.Time
}

func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{ttl: ttl, now: time.Now, entries: map[string]sessionEntry{}}
}

func (c *SessionCache) Store(scope string, results []*ds.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[scope] = sessionEntry{results: results, expires: now.Add(c.ttl)}
}

func (c *SessionCache) Load(scope string) ([]*ds.Contact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[scope]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.results, true
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
