package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// diskTier persists PCM blobs across runs. Files are content-addressed by
// key hash, written atomically via rename, and optionally zstd-compressed.
// A gob index beside the blobs carries timestamps for TTL sweeps; losing it
// only costs the cached data, never correctness.
type diskTier struct {
	basePath string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	size  int64
	index map[string]*diskEntry

	hits      int64
	misses    int64
	evictions int64
}

type diskEntry struct {
	Key        string
	FilePath   string
	Size       int64
	Timestamp  time.Time
	LastAccess time.Time
	Compressed bool
}

func newDiskTier(basePath string, capacity int64, compressionLevel int) (*diskTier, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	d := &diskTier{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		d.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		d.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	if err := d.loadIndex(); err != nil {
		// A broken index means starting cold, nothing worse.
		d.index = make(map[string]*diskEntry)
	}
	for _, entry := range d.index {
		d.size += entry.Size
	}

	return d, nil
}

func (d *diskTier) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.index[key]
	if !ok {
		d.misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		d.dropLocked(entry)
		d.misses++
		return nil, false
	}

	if entry.Compressed {
		if d.decoder == nil {
			d.dropLocked(entry)
			d.misses++
			return nil, false
		}
		decompressed, err := d.decoder.DecodeAll(data, nil)
		if err != nil {
			d.dropLocked(entry)
			d.misses++
			return nil, false
		}
		data = decompressed
	}

	entry.LastAccess = time.Now()
	d.hits++
	return data, true
}

func (d *diskTier) Put(key string, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload := blob
	compressed := false
	if d.encoder != nil && len(blob) > 1024 {
		candidate := d.encoder.EncodeAll(blob, nil)
		if len(candidate) < len(blob) {
			payload = candidate
			compressed = true
		}
	}

	diskSize := int64(len(payload))
	if diskSize > d.capacity {
		return ErrBlobTooLarge
	}

	if existing, ok := d.index[key]; ok {
		d.dropLocked(existing)
	}
	for d.size+diskSize > d.capacity && len(d.index) > 0 {
		d.evictOldestLocked()
	}

	path := d.blobPath(key)
	if err := writeFileAtomic(path, payload); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		FilePath:   path,
		Size:       diskSize,
		Timestamp:  now,
		LastAccess: now,
		Compressed: compressed,
	}
	d.size += diskSize
	return nil
}

func (d *diskTier) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.index[key]; ok {
		d.dropLocked(entry)
	}
}

// RemoveOlderThan sweeps entries written before cutoff and reports how many
// were removed.
func (d *diskTier) RemoveOlderThan(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for _, entry := range d.index {
		if entry.Timestamp.Before(cutoff) {
			d.dropLocked(entry)
			removed++
		}
	}
	return removed
}

func (d *diskTier) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Capacity:  d.capacity,
		Size:      d.size,
		ItemCount: len(d.index),
		Hits:      d.hits,
		Misses:    d.misses,
		Evictions: d.evictions,
	}
}

// Close persists the index.
func (d *diskTier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveIndex()
}

// dropLocked removes an entry and its file. Caller holds d.mu.
func (d *diskTier) dropLocked(entry *diskEntry) {
	os.Remove(entry.FilePath)
	delete(d.index, entry.Key)
	d.size -= entry.Size
}

// evictOldestLocked drops the least recently used entry. Caller holds d.mu.
func (d *diskTier) evictOldestLocked() {
	var oldest *diskEntry
	for _, entry := range d.index {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest != nil {
		d.dropLocked(oldest)
		d.evictions++
	}
}

func (d *diskTier) blobPath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(d.basePath, hex.EncodeToString(hash[:16])+".pcm")
}

func (d *diskTier) indexPath() string {
	return filepath.Join(d.basePath, "blobs.index")
}

func (d *diskTier) loadIndex() error {
	file, err := os.Open(d.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	return gob.NewDecoder(file).Decode(&d.index)
}

func (d *diskTier) saveIndex() error {
	tempPath := d.indexPath() + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(d.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, d.indexPath())
}

// writeFileAtomic writes via a temp file and rename so a crash never leaves
// a half-written blob behind the index.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
