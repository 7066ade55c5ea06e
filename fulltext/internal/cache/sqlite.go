package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/fulltext/dbopen"
)

// Schema creates the table used by the SQLite backend.
const Schema = `CREATE TABLE IF NOT EXISTS cache_entries (
	tier       TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	blob       BLOB    NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (tier, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);`

// SQLite stores entries in one table partitioned by tier, so several
// retention policies can share a database file.
type SQLite struct {
	db   *sql.DB
	tier string
	ttl  time.Duration
	now  func() time.Time
}

// NewSQLite returns a backend over db, which must already carry Schema
// (see dbopen.WithSchema).
func NewSQLite(db *sql.DB, tier string, ttl time.Duration) *SQLite {
	return &SQLite{db: db, tier: tier, ttl: ttl, now: time.Now}
}

func (s *SQLite) expiry() int64 {
	if s.ttl <= 0 {
		return 1<<62 - 1
	}
	return s.now().Add(s.ttl).UnixMilli()
}

func (s *SQLite) Test(ctx context.Context, key string) bool {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cache_entries WHERE tier = ? AND key = ? AND expires_at > ?`,
		s.tier, key, s.now().UnixMilli()).Scan(&one)
	return err == nil
}

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM cache_entries WHERE tier = ? AND key = ? AND expires_at > ?`,
		s.tier, key, s.now().UnixMilli()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: sqlite load: %w", err)
	}
	return blob, nil
}

func (s *SQLite) Save(ctx context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO cache_entries (tier, key, blob, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tier, key) DO UPDATE SET blob = excluded.blob, expires_at = excluded.expires_at`,
		s.tier, key, blob, s.expiry())
	if err != nil {
		return fmt.Errorf("cache: sqlite save: %w", err)
	}
	return nil
}

// Purge deletes expired rows of every tier and returns how many went.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: sqlite purge: %w", err)
	}
	return res.RowsAffected()
}
