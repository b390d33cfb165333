// Package cache stores decoded voice-line PCM so a line survives signed-URL
// expiry and process restarts without another download. It layers a
// byte-bounded in-memory LRU over a zstd-compressed disk tier.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

var (
	// ErrBlobTooLarge is returned when a blob exceeds a tier's capacity.
	ErrBlobTooLarge = errors.New("blob too large for cache")
)

// Key derives the cache key for a line rendered with a voice. The same
// derivation is used for every tier, so a disk entry written in one run is
// found by the next.
func Key(line scenario.LineID, voice scenario.VoiceID) string {
	return fmt.Sprintf("%d/%s", line, voice)
}

// Config sizes the blob store. Zero values take defaults.
type Config struct {
	// MemoryCapacity bounds the in-memory tier in bytes.
	MemoryCapacity int64

	// DiskCapacity bounds the on-disk tier in bytes.
	DiskCapacity int64

	// DiskPath is the directory for the disk tier. Empty disables it.
	DiskPath string

	// CompressionLevel is the zstd level for disk entries. Zero disables
	// compression.
	CompressionLevel int

	// TTL expires disk entries; voices get regenerated and stale PCM for a
	// deleted line is dead weight. Zero keeps entries forever.
	TTL time.Duration

	// JanitorInterval is how often expired disk entries are swept. Zero
	// disables the sweeper.
	JanitorInterval time.Duration
}

// DefaultConfig returns the store's default sizing: enough memory for a
// handful of scenarios and a disk tier that outlives signed URLs.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		JanitorInterval:  time.Hour,
	}
}

// Stats reports a tier's occupancy and traffic.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int
	Hits      int64
	Misses    int64
	Evictions int64
}
