package cache

import (
	"context"
	"sync"
	"time"
)

// defaultMemoryTTL applies when Set is called without an expiration.
const defaultMemoryTTL = 7 * 24 * time.Hour

type memoryItem struct {
	data     []byte
	expireAt time.Time
	lastUsed time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache implements Service in process, evicting the least recently
// used entry once MaxSize is reached.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	now     func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     time.Now,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}

	go mc.cleanupLoop()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.evictLocked(now)
	}
	mc.items[key] = &memoryItem{data: data, expireAt: now.Add(expiration), lastUsed: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	now := mc.now()
	item, exists := mc.items[key]
	if !exists || item.expired(now) {
		if exists {
			delete(mc.items, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.lastUsed = now
	data := item.data
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key := range mc.items {
		if matchPattern(pattern, key) {
			delete(mc.items, key)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for _, key := range keys {
		if item, ok := mc.items[key]; ok && !item.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

// evictLocked drops expired entries first, then the least recently used one.
func (mc *MemoryCache) evictLocked(now time.Time) {
	if mc.purgeExpiredLocked(now) > 0 {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = item.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) purgeExpiredLocked(now time.Time) int {
	n := 0
	for key, item := range mc.items {
		if item.expired(now) {
			delete(mc.items, key)
			n++
		}
	}
	return n
}

func (mc *MemoryCache) cleanupLoop() {
	for {
		select {
		case <-mc.ticker.C:
			mc.mu.Lock()
			mc.purgeExpiredLocked(mc.now())
			mc.mu.Unlock()
		case <-mc.done:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
