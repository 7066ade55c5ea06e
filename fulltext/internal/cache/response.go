package cache

import (
	"context"
	"errors"
	"log/slog"
)

// ResponseCache memoises rendered feed documents by request fingerprint.
// Keyed and unkeyed access use separate stores so each tier keeps its own
// retention. Backend errors are logged and treated as misses.
type ResponseCache struct {
	keyed   PersistentCache
	unkeyed PersistentCache
	logger  *slog.Logger
}

// NewResponseCache returns a cache over the two tier stores.
func NewResponseCache(keyed, unkeyed PersistentCache, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{keyed: keyed, unkeyed: unkeyed, logger: logger}
}

func (c *ResponseCache) store(keyed bool) PersistentCache {
	if keyed {
		return c.keyed
	}
	return c.unkeyed
}

// Get returns the stored document for fingerprint, if any.
func (c *ResponseCache) Get(ctx context.Context, fingerprint string, keyed bool) ([]byte, bool) {
	doc, err := c.store(keyed).Load(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache: response load failed", "fingerprint", fingerprint, "error", err)
		}
		return nil, false
	}
	return doc, true
}

// Put stores doc under fingerprint. Failures are logged, never returned.
func (c *ResponseCache) Put(ctx context.Context, fingerprint string, keyed bool, doc []byte) {
	if err := c.store(keyed).Save(ctx, fingerprint, doc); err != nil {
		c.logger.Warn("cache: response save failed", "fingerprint", fingerprint, "error", err)
	}
}
