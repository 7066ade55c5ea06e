// CLAUDE:SUMMARY Persistent key/blob cache contract, content-hash keys, and the rendered-feed ResponseCache.
// Package cache provides the persistent key→blob store used for fetched
// pages and rendered feeds, in three backends (file tree, SQLite, memory).
//
// Retention is a property of each backend instance: callers that need two
// lifetimes (keyed and unkeyed access) open two instances.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrMiss is returned by Load when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// ErrBadKey is returned for keys outside [A-Za-z0-9_-].
var ErrBadKey = errors.New("cache: invalid key")

// PersistentCache is a TTL-bound key→blob store. Implementations are safe
// for use by one process; concurrent writers in other processes are not
// coordinated.
type PersistentCache interface {
	// Test reports whether a live entry exists for key.
	Test(ctx context.Context, key string) bool
	// Load returns the blob stored under key, or ErrMiss.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save stores blob under key, replacing any previous entry.
	Save(ctx context.Context, key string, blob []byte) error
}

// Key derives a cache key from parts: the hex BLAKE2b-256 digest of the
// parts joined with NUL separators.
func Key(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return ErrBadKey
	}
	return nil
}
