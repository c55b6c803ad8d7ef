package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// cacheVersion changes whenever the cached document format changes.
const cacheVersion = 1

type cacheEntry struct {
	Version int    `msgpack:"version"`
	Hash    string `msgpack:"hash"`
	SDL     string `msgpack:"sdl"`
}

// Cache stores the manipulated schema document in a msgpack file. An entry
// is only used when it was written for the same source hash.
type Cache struct {
	path string
}

// NewCache returns a cache backed by the file at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the cache file path.
func (c *Cache) Path() string { return c.path }

// Load returns the cached document for hash. A missing file, an older
// format or a different hash is a miss.
func (c *Cache) Load(hash string) (string, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("schema: reading cache: %w", err)
	}
	var e cacheEntry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return "", false, fmt.Errorf("schema: decoding cache %s: %w", c.path, err)
	}
	if e.Version != cacheVersion || e.Hash != hash {
		return "", false, nil
	}
	return e.SDL, true, nil
}

// Save writes the document for hash, replacing the file atomically.
func (c *Cache) Save(hash, sdl string) error {
	data, err := msgpack.Marshal(&cacheEntry{Version: cacheVersion, Hash: hash, SDL: sdl})
	if err != nil {
		return fmt.Errorf("schema: encoding cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("schema: creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".schema-cache-*")
	if err != nil {
		return fmt.Errorf("schema: writing cache: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("schema: writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("schema: writing cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("schema: writing cache: %w", err)
	}
	return nil
}

// Clear removes the cache file. Clearing a missing cache succeeds.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("schema: clearing cache: %w", err)
	}
	return nil
}
