package cache

import (
	"container/list"
	"sync"
)

// memoryTier is a byte-bounded LRU over decoded PCM. Eviction here is
// harmless: the disk tier still holds the blob and the audio registry pins
// whatever is currently wired into the playback graph.
type memoryTier struct {
	capacity int64

	mu       sync.Mutex
	size     int64
	items    map[string]*list.Element
	eviction *list.List

	hits      int64
	misses    int64
	evictions int64
}

type memoryEntry struct {
	key  string
	blob []byte
}

func newMemoryTier(capacity int64) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

func (m *memoryTier) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, false
	}
	m.eviction.MoveToFront(elem)
	m.hits++
	return elem.Value.(*memoryEntry).blob, true
}

func (m *memoryTier) Put(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blobSize := int64(len(blob))
	if blobSize > m.capacity {
		return ErrBlobTooLarge
	}

	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		m.size += blobSize - int64(len(entry.blob))
		entry.blob = blob
		m.eviction.MoveToFront(elem)
		return nil
	}

	for m.size+blobSize > m.capacity && m.eviction.Len() > 0 {
		m.evictOldest()
	}

	elem := m.eviction.PushFront(&memoryEntry{key: key, blob: blob})
	m.items[key] = elem
	m.size += blobSize
	return nil
}

func (m *memoryTier) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
}

func (m *memoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.eviction.Init()
	m.size = 0
}

func (m *memoryTier) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Capacity:  m.capacity,
		Size:      m.size,
		ItemCount: len(m.items),
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
	}
}

// evictOldest drops the least recently used blob. Caller holds m.mu.
func (m *memoryTier) evictOldest() {
	if elem := m.eviction.Back(); elem != nil {
		m.removeElement(elem)
		m.evictions++
	}
}

// removeElement unlinks an entry. Caller holds m.mu.
func (m *memoryTier) removeElement(elem *list.Element) {
	m.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
	m.size -= int64(len(entry.blob))
}
