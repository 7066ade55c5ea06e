package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// entrySlack covers bigcache's per-entry header and the expiry stamp.
const entrySlack = 1 << 10

// Memory keeps entries in a process-local bigcache. Entries vanish on
// restart; use it when no disk is available or in tests.
//
// bigcache only evicts on its clean window, so every blob is stored behind
// an 8-byte expiry stamp that Load checks.
type Memory struct {
	bc  *bigcache.BigCache
	ttl time.Duration
	now func() time.Time
}

// NewMemory returns an in-memory backend whose entries live for ttl.
// maxMB caps the memory used (0 means unbounded). maxEntry is the largest
// blob that must fit; shards are halved until one shard can hold it.
func NewMemory(ctx context.Context, ttl time.Duration, maxMB int, maxEntry int64) (*Memory, error) {
	cfg := bigcache.DefaultConfig(ttl)
	// Feed documents and pages are few and large.
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 16 << 10
	if maxMB > 0 {
		total := int64(maxMB) << 20
		if total < maxEntry+entrySlack {
			return nil, fmt.Errorf("cache: memory_mb %d cannot hold a %d-byte entry", maxMB, maxEntry)
		}
		for cfg.Shards > 1 && total/int64(cfg.Shards) < maxEntry+entrySlack {
			cfg.Shards /= 2
		}
	}
	cfg.CleanWindow = ttl / 2
	if cfg.CleanWindow < time.Second {
		cfg.CleanWindow = time.Second
	}
	cfg.HardMaxCacheSize = maxMB
	cfg.Verbose = false
	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: bigcache: %w", err)
	}
	return &Memory{bc: bc, ttl: ttl, now: time.Now}, nil
}

func (m *Memory) Test(ctx context.Context, key string) bool {
	_, err := m.Load(ctx, key)
	return err == nil
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	entry, err := m.bc.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: memory load: %w", err)
	}
	if len(entry) < 8 {
		m.bc.Delete(key)
		return nil, ErrMiss
	}
	expires := time.Unix(0, int64(binary.BigEndian.Uint64(entry)))
	if !m.now().Before(expires) {
		m.bc.Delete(key)
		return nil, ErrMiss
	}
	return entry[8:], nil
}

func (m *Memory) Save(_ context.Context, key string, blob []byte) error {
	entry := make([]byte, 8+len(blob))
	binary.BigEndian.PutUint64(entry, uint64(m.now().Add(m.ttl).UnixNano()))
	copy(entry[8:], blob)
	if err := m.bc.Set(key, entry); err != nil {
		return fmt.Errorf("cache: memory save: %w", err)
	}
	return nil
}

// Close stops the background cleaner.
func (m *Memory) Close() error {
	return m.bc.Close()
}
