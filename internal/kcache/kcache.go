// Package kcache stores compiled programs on disk. Entries are msgpack
// encoded, zstd compressed and addressed by a siphash of everything the
// compilation depends on.
package kcache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dchest/siphash"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"vc4c/internal/codegen"
)

// schemaVersion changes whenever the layout of Program changes.
const schemaVersion uint16 = 1

const (
	k0 = 0x5643344320636163
	k1 = 0x68652076302e3120
)

// Key addresses one compiled method.
type Key [16]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyOf hashes the parts in order. Parts are length-prefixed, so moving
// bytes from one part to the next changes the key.
func KeyOf(parts ...[]byte) Key {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, schemaVersion)
	for _, p := range parts {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(p)))
		buf = append(buf, p...)
	}
	lo, hi := siphash.Hash128(k0, k1, buf)
	var k Key
	binary.LittleEndian.PutUint64(k[:8], lo)
	binary.LittleEndian.PutUint64(k[8:], hi)
	return k
}

type entry struct {
	Schema  uint16
	Program *codegen.Program
}

// Cache is safe for concurrent use. A nil *Cache misses every lookup and
// drops every store.
type Cache struct {
	mu  sync.RWMutex
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// DefaultDir returns $XDG_CACHE_HOME/vc4c, falling back to ~/.cache/vc4c.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "vc4c"), nil
}

// Open creates the cache directory if needed. An empty dir uses DefaultDir.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, enc: enc, dec: dec}, nil
}

// Dir returns the directory of the cache.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Key) string {
	s := key.String()
	return filepath.Join(c.dir, s[:2], s+".mpz")
}

// Put stores prog under key. The file is replaced atomically.
func (c *Cache) Put(key Key, prog *codegen.Program) (err error) {
	if c == nil {
		return nil
	}
	raw, err := msgpack.Marshal(&entry{Schema: schemaVersion, Program: prog})
	if err != nil {
		return fmt.Errorf("encode %s: %w", prog.Method, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()
	if _, err = f.Write(c.enc.EncodeAll(raw, nil)); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	err = os.Rename(tmp, p)
	return err
}

// Get loads the program stored under key. Entries written with another
// schema read as misses.
func (c *Cache) Get(key Key) (*codegen.Program, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", key, err)
	}
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if e.Schema != schemaVersion || e.Program == nil {
		return nil, false, nil
	}
	return e.Program, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
