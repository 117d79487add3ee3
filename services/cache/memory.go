package cache

import (
	"sync"
	"time"
)

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryService implements CacheService with an in-process TTL map.
// It needs no external service, which keeps the crawler core self-contained
// and the tests hermetic.
type MemoryService struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	done   chan struct{}
	closed bool
}

// NewMemoryService creates an in-memory cache. A janitor drops expired
// entries every cleanupInterval; pass 0 to rely on lazy expiry only.
func NewMemoryService(cleanupInterval time.Duration) *MemoryService {
	m := &MemoryService{
		items: make(map[string]memoryItem),
		done:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	}
	return m
}

// Get retrieves a value; expired entries are a miss
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return item.value, nil
}

// Set stores a value; expiration 0 means no expiry
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	var expires time.Time
	if expiration > 0 {
		expires = time.Now().Add(expiration)
	}

	m.mu.Lock()
	m.items[key] = memoryItem{value: copied, expires: expires}
	m.mu.Unlock()
	return nil
}

// Delete removes a value
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries
func (m *MemoryService) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	n := 0
	for _, item := range m.items {
		if item.expires.IsZero() || now.Before(item.expires) {
			n++
		}
	}
	return n
}

// Close stops the janitor
func (m *MemoryService) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *MemoryService) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, item := range m.items {
				if !item.expires.IsZero() && now.After(item.expires) {
					delete(m.items, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
