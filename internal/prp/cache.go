package prp

import (
	"container/list"
	"sync"
	"time"

	"github.com/altinn-access/go-core/internal/xacml"
)

// policyCache is an LRU cache for parsed policy versions. Versions are
// immutable, so entries only need TTL to bound memory, never to refresh.
type policyCache struct {
	capacity int
	ttl      time.Duration

	items map[string]*list.Element
	order *list.List
	mu    sync.Mutex

	hits   uint64
	misses uint64
}

type policyCacheEntry struct {
	key       string
	policy    *xacml.Policy
	expiresAt time.Time
}

func newPolicyCache(capacity int, ttl time.Duration) *policyCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &policyCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *policyCache) get(key string) (*xacml.Policy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*policyCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return entry.policy, true
}

func (c *policyCache) set(key string, policy *xacml.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*policyCacheEntry)
		entry.policy = policy
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*policyCacheEntry).key)
	}

	elem := c.order.PushFront(&policyCacheEntry{
		key:       key,
		policy:    policy,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = elem
}
