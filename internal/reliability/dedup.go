// Package reliability bounds the work done per inbound event and
// guarantees each acknowledgement is produced at most once: a FIFO
// dedup set gates events before any cryptographic work, a persistent
// store remembers which message ids were already acknowledged, and a
// paced queue drains outbound acknowledgements.
package reliability

import "sync"

// DefaultDedupCapacity matches the deployed clients.
const DefaultDedupCapacity = 2000

// DedupCache is a capacity-bounded FIFO set of event ids. Insertion
// past capacity evicts the oldest id; membership is O(1). The
// critical section covers only the map/ring mutation.
type DedupCache struct {
	mu   sync.Mutex
	set  map[string]struct{}
	ring []string
	head int
}

func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		set:  make(map[string]struct{}, capacity),
		ring: make([]string, 0, capacity),
	}
}

// ShouldProcess reports whether the id is new, inserting it if so.
// This gate runs before any unwrap work so replayed or flooded
// events cost a map lookup, not an ECDH.
func (c *DedupCache) ShouldProcess(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.set[id]; seen {
		return false
	}
	if len(c.ring) < cap(c.ring) {
		c.ring = append(c.ring, id)
	} else {
		delete(c.set, c.ring[c.head])
		c.ring[c.head] = id
		c.head = (c.head + 1) % cap(c.ring)
	}
	c.set[id] = struct{}{}
	return true
}

// Len returns the number of ids currently tracked.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.set)
}
