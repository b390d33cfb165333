package cache

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store is the two-tier blob store handed to playback sessions. Reads check
// memory first and promote disk hits; writes land in both tiers. The disk
// tier is optional, and every disk failure degrades to a miss rather than an
// error on the playback path.
type Store struct {
	memory *memoryTier
	disk   *diskTier
	ttl    time.Duration

	janitorStop chan struct{}
	janitorWg   sync.WaitGroup
	closeOnce   sync.Once
}

// NewStore creates a blob store from cfg. Zero capacities take defaults.
func NewStore(cfg Config) (*Store, error) {
	defaults := DefaultConfig()
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = defaults.MemoryCapacity
	}
	if cfg.DiskCapacity <= 0 {
		cfg.DiskCapacity = defaults.DiskCapacity
	}

	s := &Store{
		memory:      newMemoryTier(cfg.MemoryCapacity),
		ttl:         cfg.TTL,
		janitorStop: make(chan struct{}),
	}

	if cfg.DiskPath != "" {
		disk, err := newDiskTier(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		s.disk = disk

		if cfg.TTL > 0 {
			removed := disk.RemoveOlderThan(time.Now().Add(-cfg.TTL))
			if removed > 0 {
				log.Debug("expired cached audio removed", "count", removed)
			}
		}
		if cfg.JanitorInterval > 0 && cfg.TTL > 0 {
			s.startJanitor(cfg.JanitorInterval)
		}
	}

	return s, nil
}

// Get returns the blob for key, promoting disk hits into memory.
func (s *Store) Get(key string) ([]byte, bool) {
	if blob, ok := s.memory.Get(key); ok {
		return blob, true
	}
	if s.disk == nil {
		return nil, false
	}
	blob, ok := s.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := s.memory.Put(key, blob); err != nil {
		log.Debug("blob promotion skipped", "key", key, "error", err)
	}
	return blob, true
}

// Put stores the blob in both tiers. A blob too large for the memory tier
// still lands on disk.
func (s *Store) Put(key string, blob []byte) error {
	memErr := s.memory.Put(key, blob)
	if memErr != nil && memErr != ErrBlobTooLarge {
		return memErr
	}
	if s.disk != nil {
		if err := s.disk.Put(key, blob); err != nil {
			log.Debug("disk cache store failed", "key", key, "error", err)
		}
	}
	return nil
}

// Delete removes the blob from both tiers.
func (s *Store) Delete(key string) {
	s.memory.Delete(key)
	if s.disk != nil {
		s.disk.Delete(key)
	}
}

// MemoryStats reports the in-memory tier's occupancy.
func (s *Store) MemoryStats() Stats { return s.memory.Stats() }

// DiskStats reports the disk tier's occupancy. Zero value without a disk
// tier.
func (s *Store) DiskStats() Stats {
	if s.disk == nil {
		return Stats{}
	}
	return s.disk.Stats()
}

// Close stops the janitor and persists the disk index.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.janitorStop)
		s.janitorWg.Wait()
		if s.disk != nil {
			err = s.disk.Close()
		}
	})
	return err
}

func (s *Store) startJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	s.janitorWg.Add(1)
	go func() {
		defer s.janitorWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := s.disk.RemoveOlderThan(time.Now().Add(-s.ttl))
				if removed > 0 {
					log.Debug("expired cached audio removed", "count", removed)
				}
			case <-s.janitorStop:
				return
			}
		}
	}()
}
