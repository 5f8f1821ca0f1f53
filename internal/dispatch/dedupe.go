package dispatch

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduper suppresses duplicate message deliveries. Chat platforms redeliver
// updates after reconnects and timeouts; keying on the platform message ID
// keeps one delivery from running a command twice.
//
// Backed by an expirable LRU so memory stays bounded without manual pruning.
type Deduper struct {
	cache *expirable.LRU[string, struct{}]
}

// NewDeduper creates a dedupe cache. Keys are remembered for ttl, capped at
// maxSize entries with least-recently-used eviction.
func NewDeduper(ttl time.Duration, maxSize int) *Deduper {
	return &Deduper{
		cache: expirable.NewLRU[string, struct{}](maxSize, nil, ttl),
	}
}

// Seen reports whether key was already delivered within the TTL window.
// A new key is recorded for future checks.
func (d *Deduper) Seen(key string) bool {
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}

// Len returns the number of remembered keys.
func (d *Deduper) Len() int {
	return d.cache.Len()
}
