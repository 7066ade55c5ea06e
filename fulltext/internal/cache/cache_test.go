package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fulltext/dbopen"
)

func backends(t *testing.T, ttl time.Duration) map[string]PersistentCache {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	mem, err := NewMemory(context.Background(), ttl, 0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mem.Close() })
	return map[string]PersistentCache{
		"file":   NewFile(t.TempDir(), 2, ttl),
		"sqlite": NewSQLite(db, "rss", ttl),
		"memory": mem,
	}
}

func TestBackends_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			key := Key("http://example.com/feed.xml")
			if c.Test(ctx, key) {
				t.Fatal("empty cache reports a hit")
			}
			if _, err := c.Load(ctx, key); !errors.Is(err, ErrMiss) {
				t.Fatalf("Load on empty: got %v, want ErrMiss", err)
			}
			if err := c.Save(ctx, key, []byte("<rss/>")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if !c.Test(ctx, key) {
				t.Fatal("Test after Save: miss")
			}
			got, err := c.Load(ctx, key)
			if err != nil || !bytes.Equal(got, []byte("<rss/>")) {
				t.Fatalf("Load: %q, %v", got, err)
			}
			if err := c.Save(ctx, key, []byte("v2")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if got, _ := c.Load(ctx, key); string(got) != "v2" {
				t.Fatalf("overwrite: got %q", got)
			}
		})
	}
}

func TestFile_Expiry(t *testing.T) {
	ctx := context.Background()
	f := NewFile(t.TempDir(), 0, time.Minute)
	now := time.Now()
	f.now = func() time.Time { return now }

	key := Key("a")
	if err := f.Save(ctx, key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	f.now = func() time.Time { return now.Add(2 * time.Minute) }
	if f.Test(ctx, key) {
		t.Fatal("expired entry reported live")
	}
	if _, err := f.Load(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expired Load: %v", err)
	}
}

func TestFile_Layout(t *testing.T) {
	// WHAT: directory_level fans entries out under ff--<prefix> directories.
	dir := t.TempDir()
	f := NewFile(dir, 2, time.Hour)
	key := "abcdef"
	if err := f.Save(context.Background(), key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "ff--a", "ff--ab", "ff---abcdef")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected file at %s: %v", want, err)
	}
}

func TestFile_ConcurrentSaves(t *testing.T) {
	// WHAT: Concurrent saves of one key leave exactly one complete blob.
	// WHY: Two requests with the same fingerprint may finish together.
	ctx := context.Background()
	dir := t.TempDir()
	f := NewFile(dir, 1, time.Hour)
	key := Key("http://example.com/feed.xml")

	blobs := make([][]byte, 8)
	for i := range blobs {
		blobs[i] = bytes.Repeat([]byte{byte('a' + i)}, (i+1)*256<<10)
	}

	for round := range 20 {
		var wg sync.WaitGroup
		errs := make(chan error, len(blobs))
		for _, b := range blobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- f.Save(ctx, key, b)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("round %d: Save: %v", round, err)
			}
		}

		got, err := f.Load(ctx, key)
		if err != nil {
			t.Fatalf("round %d: Load: %v", round, err)
		}
		whole := false
		for _, b := range blobs {
			if bytes.Equal(got, b) {
				whole = true
				break
			}
		}
		if !whole {
			t.Fatalf("round %d: stored %d bytes matching no single save", round, len(got))
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*", "*.tmp"))
	if len(leftovers) > 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestMemory_ExpiresOnLoad(t *testing.T) {
	// WHAT: An entry past its ttl is a miss even before bigcache cleans it.
	ctx := context.Background()
	m, err := NewMemory(ctx, time.Minute, 0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	now := time.Now()
	m.now = func() time.Time { return now }

	key := Key("a")
	if err := m.Save(ctx, key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return now.Add(59 * time.Second) }
	if !m.Test(ctx, key) {
		t.Fatal("live entry reported missing")
	}
	m.now = func() time.Time { return now.Add(time.Minute) }
	if m.Test(ctx, key) {
		t.Fatal("expired entry reported live")
	}
	if _, err := m.Load(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expired Load: %v", err)
	}
}

func TestMemory_HoldsLargestEntry(t *testing.T) {
	// WHAT: Shards are sized so a blob of the configured maximum fits.
	ctx := context.Background()
	m, err := NewMemory(ctx, time.Hour, 16, 4<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	blob := bytes.Repeat([]byte("x"), 4<<20)
	if err := m.Save(ctx, Key("big"), blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := m.Load(ctx, Key("big"))
	if err != nil || !bytes.Equal(got, blob) {
		t.Fatalf("Load: %d bytes, %v", len(got), err)
	}

	if _, err := NewMemory(ctx, time.Hour, 1, 4<<20); err == nil {
		t.Fatal("a cap smaller than one entry must be refused")
	}
}

func TestFile_BadKey(t *testing.T) {
	f := NewFile(t.TempDir(), 0, time.Hour)
	if err := f.Save(context.Background(), "../escape", []byte("x")); !errors.Is(err, ErrBadKey) {
		t.Fatalf("got %v, want ErrBadKey", err)
	}
}

func TestSQLite_TiersAndPurge(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	keyed := NewSQLite(db, "rss-with-key", time.Minute)
	unkeyed := NewSQLite(db, "rss", time.Minute)

	if err := keyed.Save(ctx, "k1", []byte("keyed")); err != nil {
		t.Fatal(err)
	}
	if unkeyed.Test(ctx, "k1") {
		t.Fatal("tiers must not share entries")
	}

	now := time.Now()
	keyed.now = func() time.Time { return now.Add(time.Hour) }
	n, err := keyed.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
}

func TestKey_Deterministic(t *testing.T) {
	if Key("a", "b") != Key("a", "b") {
		t.Fatal("Key not deterministic")
	}
	if Key("a", "b") == Key("ab") {
		t.Fatal("part boundaries must matter")
	}
	if len(Key("x")) != 64 {
		t.Fatalf("Key length: %d", len(Key("x")))
	}
}

type failingCache struct{}

func (failingCache) Test(context.Context, string) bool { return false }
func (failingCache) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (failingCache) Save(context.Context, string, []byte) error { return errors.New("disk on fire") }

func TestResponseCache_Tiers(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(NewFile(t.TempDir(), 0, time.Hour), NewFile(t.TempDir(), 0, time.Hour), nil)

	rc.Put(ctx, "fp1", true, []byte("keyed doc"))
	if _, ok := rc.Get(ctx, "fp1", false); ok {
		t.Fatal("unkeyed tier must not see keyed entries")
	}
	doc, ok := rc.Get(ctx, "fp1", true)
	if !ok || string(doc) != "keyed doc" {
		t.Fatalf("Get: %q %v", doc, ok)
	}
}

func TestResponseCache_SwallowsErrors(t *testing.T) {
	// WHAT: Backend failures degrade to misses.
	// WHY: A broken cache must never fail the feed request.
	rc := NewResponseCache(failingCache{}, failingCache{}, nil)
	rc.Put(context.Background(), "fp", false, []byte("x"))
	if _, ok := rc.Get(context.Background(), "fp", false); ok {
		t.Fatal("failing backend reported a hit")
	}
}
