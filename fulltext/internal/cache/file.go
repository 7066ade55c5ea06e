package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/fulltext/horosafe"
)

const filePrefix = "ff"

// File stores each entry as one file below dir. With level > 0 the files
// fan out into nested directories named after the leading characters of
// the key (ff--a/ff--ab/ff---abcd...). Expiry is judged from the file's
// modification time.
type File struct {
	dir   string
	level int
	ttl   time.Duration
	now   func() time.Time
}

// NewFile returns a file-tree cache rooted at dir. The directory is
// created on first save.
func NewFile(dir string, level int, ttl time.Duration) *File {
	if level < 0 {
		level = 0
	}
	return &File{dir: dir, level: level, ttl: ttl, now: time.Now}
}

func (f *File) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	rel := ""
	for i := 0; i < f.level && i < len(key); i++ {
		rel = filepath.Join(rel, filePrefix+"--"+key[:i+1])
	}
	rel = filepath.Join(rel, filePrefix+"---"+key)
	return horosafe.SafePath(f.dir, rel)
}

func (f *File) fresh(info fs.FileInfo) bool {
	return f.ttl <= 0 || f.now().Before(info.ModTime().Add(f.ttl))
}

func (f *File) Test(_ context.Context, key string) bool {
	p, err := f.path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && f.fresh(info)
}

func (f *File) Load(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: stat: %w", err)
	}
	if !f.fresh(info) {
		os.Remove(p)
		return nil, ErrMiss
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cache: read: %w", err)
	}
	return data, nil
}

// Save writes to a uniquely named temp file then renames it over the
// entry, so concurrent saves of one key never interleave.
func (f *File) Save(_ context.Context, key string, blob []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filePrefix+"-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("cache: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("cache: close: %w", err)
	}
	if err := os.Rename(name, p); err != nil {
		os.Remove(name)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}
