package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache è un cache LRU in processo con TTL per entry.
// I valori vengono copiati in ingresso e in uscita: più run concorrenti
// leggono gli stessi risultati di ricerca.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = usato più di recente
	capacity   int
	defaultTTL time.Duration
	stats      CacheStats
	now        func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

type memoryItem struct {
	key     string
	value   []byte
	expires time.Time
}

// NewMemoryCache crea il cache e avvia il janitor che rimuove le entry scadute
func NewMemoryCache(capacity int, defaultTTL time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}

	m := &MemoryCache{
		items:      make(map[string]*list.Element, capacity),
		order:      list.New(),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go m.janitor(max(min(defaultTTL/2, time.Minute), time.Second))
	return m
}

// Get implementa Cache
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		return nil, ErrCacheMiss
	}

	item := elem.Value.(*memoryItem)
	if !m.now().Before(item.expires) {
		m.remove(elem)
		m.stats.Misses++
		return nil, ErrCacheMiss
	}

	m.order.MoveToFront(elem)
	m.stats.Hits++
	return clone(item.value), nil
}

// Set implementa Cache. ttl <= 0 usa il TTL di default.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Sets++
	expires := m.now().Add(ttl)

	if elem, ok := m.items[key]; ok {
		item := elem.Value.(*memoryItem)
		m.stats.Size += int64(len(value) - len(item.value))
		item.value = clone(value)
		item.expires = expires
		m.order.MoveToFront(elem)
		return nil
	}

	if m.order.Len() >= m.capacity {
		m.makeRoom()
	}

	m.items[key] = m.order.PushFront(&memoryItem{key: key, value: clone(value), expires: expires})
	m.stats.Size += int64(len(value))
	return nil
}

// Delete implementa Cache
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.remove(elem)
		m.stats.Deletes++
	}
	return nil
}

// Clear implementa Cache
func (m *MemoryCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element, m.capacity)
	m.order.Init()
	m.stats.Size = 0
	return nil
}

// Stats implementa Cache
func (m *MemoryCache) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Len restituisce il numero di entry, comprese quelle scadute non ancora rimosse
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Close ferma il janitor; può essere chiamato più volte
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// makeRoom libera un posto: prima un'entry scaduta, altrimenti la meno usata
func (m *MemoryCache) makeRoom() {
	if m.purgeExpired(m.now()) > 0 {
		return
	}
	if elem := m.order.Back(); elem != nil {
		m.remove(elem)
		m.stats.Evictions++
	}
}

func (m *MemoryCache) remove(elem *list.Element) {
	item := m.order.Remove(elem).(*memoryItem)
	delete(m.items, item.key)
	m.stats.Size -= int64(len(item.value))
}

// purgeExpired rimuove le entry scadute a now; il chiamante tiene il lock
func (m *MemoryCache) purgeExpired(now time.Time) int {
	removed := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*memoryItem).expires) {
			m.remove(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (m *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.purgeExpired(m.now())
			m.mu.Unlock()
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
