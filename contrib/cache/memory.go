package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/syssam/linkage"
)

// entry is one cached value with its LRU metadata.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	size      int64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process linkage.Cache with LRU eviction and TTL support.
type Memory struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recent

	maxSize     int64
	currentSize int64
	now         func() time.Time

	hits, misses, added, evicted uint64
}

// Metrics holds cache statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// MemoryOption configures the Memory cache.
type MemoryOption func(*Memory)

// WithMaxSize caps the total size of keys and values in bytes.
// Least recently used entries are evicted above it. Default is 32MiB.
func WithMaxSize(n int64) MemoryOption {
	return func(m *Memory) {
		m.maxSize = n
	}
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   32 << 20,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements linkage.Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, nil
	}
	ent := elem.Value.(*entry)
	if ent.expired(m.now()) {
		m.removeElement(elem)
		m.misses++
		return nil, nil
	}
	m.evictList.MoveToFront(elem)
	m.hits++
	return ent.value, nil
}

// Set implements linkage.Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	size := int64(len(key) + len(value))
	if elem, ok := m.items[key]; ok {
		ent := elem.Value.(*entry)
		m.currentSize += size - ent.size
		ent.value, ent.expiresAt, ent.size = value, expiresAt, size
		m.evictList.MoveToFront(elem)
	} else {
		ent := &entry{key: key, value: value, expiresAt: expiresAt, size: size}
		m.items[key] = m.evictList.PushFront(ent)
		m.currentSize += size
		m.added++
	}
	for m.currentSize > m.maxSize && m.evictList.Len() > 0 {
		m.removeElement(m.evictList.Back())
		m.evicted++
	}
	return nil
}

// Delete implements linkage.Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// DeletePrefix implements linkage.Cache.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, elem := range m.items {
		if strings.HasPrefix(key, prefix) {
			m.removeElement(elem)
		}
	}
	return nil
}

// Clear implements linkage.Cache.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
	m.currentSize = 0
	return nil
}

// Metrics returns cache statistics.
func (m *Memory) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Hits:        m.hits,
		Misses:      m.misses,
		KeysAdded:   m.added,
		KeysEvicted: m.evicted,
	}
}

// Len returns the current number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Size returns the current total size in bytes.
func (m *Memory) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSize
}

// removeElement must be called with the lock held.
func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(m.items, ent.key)
	m.currentSize -= ent.size
}

var _ linkage.Cache = (*Memory)(nil)
