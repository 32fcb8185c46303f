package categorize

import "sync"

// VendorCache holds accepted LLM vendor→category mappings for the lifetime
// of the process, so a vendor is never sent to the LLM twice for the same
// user.
type VendorCache struct {
	mu     sync.RWMutex
	shards map[string]*cacheShard
}

type cacheShard struct {
	mu      sync.Mutex
	vendors map[string]string
}

// NewVendorCache creates an empty vendor cache.
func NewVendorCache() *VendorCache {
	return &VendorCache{shards: make(map[string]*cacheShard)}
}

func (c *VendorCache) shard(userID string) *cacheShard {
	c.mu.RLock()
	shard, ok := c.shards[userID]
	c.mu.RUnlock()
	if ok {
		return shard
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if shard, ok = c.shards[userID]; ok {
		return shard
	}
	shard = &cacheShard{vendors: make(map[string]string)}
	c.shards[userID] = shard
	return shard
}

// Get returns the cached category for a vendor.
func (c *VendorCache) Get(userID, vendor string) (string, bool) {
	shard := c.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	category, ok := shard.vendors[vendorKey(vendor)]
	return category, ok
}

// Put caches an accepted mapping.
func (c *VendorCache) Put(userID, vendor, category string) {
	key := vendorKey(vendor)
	if key == "" || category == "" {
		return
	}
	shard := c.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.vendors[key] = category
}
