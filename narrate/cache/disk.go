package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrItemTooLarge is returned when a payload exceeds the disk cache capacity.
var ErrItemTooLarge = errors.New("cache: item too large")

// DefaultDiskCapacity is the disk cache size cap applied when none is
// configured.
const DefaultDiskCapacity = 256 * 1024 * 1024

// Disk persists raw synthesized audio across sessions, compressed with zstd.
// Keys are derived from the synthesis request, so a hit is always valid for
// the exact text, voice, and rate it was produced with. Playback works
// without it; every method degrades to a miss on I/O trouble.
type Disk struct {
	dir      string
	capacity int64

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu    sync.Mutex
	size  int64
	files map[string]int64 // file name -> compressed size
}

// NewDisk opens a disk cache rooted at dir, creating it if needed, and scans
// existing entries to establish the current size. capacity <= 0 selects
// DefaultDiskCapacity.
func NewDisk(dir string, capacity int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	if capacity <= 0 {
		capacity = DefaultDiskCapacity
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cache: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: zstd decoder: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		enc:      enc,
		dec:      dec,
		files:    make(map[string]int64),
	}
	d.scan()
	return d, nil
}

// Key derives the cache key for a synthesis request.
func Key(text, voice string, rate float64) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(rate, 'f', 2, 64)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get returns the decompressed payload for key, if present. Unreadable or
// corrupt entries are removed and reported as misses.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := key + ".zst"
	if _, ok := d.files[name]; !ok {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		d.drop(name)
		return nil, false
	}
	out, err := d.dec.DecodeAll(data, nil)
	if err != nil {
		d.drop(name)
		return nil, false
	}
	return out, true
}

// Put compresses and stores a payload, evicting arbitrary entries when the
// cache is over capacity.
func (d *Disk) Put(key string, payload []byte) error {
	compressed := d.enc.EncodeAll(payload, nil)
	size := int64(len(compressed))
	if size > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := key + ".zst"
	if old, ok := d.files[name]; ok {
		d.size -= old
	}
	for d.size+size > d.capacity && len(d.files) > 0 {
		d.evictOne()
	}

	path := filepath.Join(d.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: write: %w", err)
	}

	d.files[name] = size
	d.size += size
	return nil
}

// Contains reports whether an entry exists for key.
func (d *Disk) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[key+".zst"]
	return ok
}

// Size returns the compressed bytes currently stored.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Clear removes every entry.
func (d *Disk) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name := range d.files {
		os.Remove(filepath.Join(d.dir, name))
	}
	d.files = make(map[string]int64)
	d.size = 0
}

// scan indexes entries left by previous sessions.
func (d *Disk) scan() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".zst" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d.files[e.Name()] = info.Size()
		d.size += info.Size()
	}
}

// evictOne removes one entry. Callers must hold d.mu.
func (d *Disk) evictOne() {
	for name := range d.files {
		os.Remove(filepath.Join(d.dir, name))
		d.drop(name)
		return
	}
}

// drop forgets an entry without touching disk. Callers must hold d.mu.
func (d *Disk) drop(name string) {
	if size, ok := d.files[name]; ok {
		d.size -= size
		delete(d.files, name)
	}
	// Best effort removal of the backing file if it still exists.
	if _, err := os.Stat(filepath.Join(d.dir, name)); !errors.Is(err, fs.ErrNotExist) {
		os.Remove(filepath.Join(d.dir, name))
	}
}
