package cache

import (
	"bytes"
	"testing"
)

// TestKeyDistinguishesParams tests that any request component changes the key.
func TestKeyDistinguishesParams(t *testing.T) {
	base := Key("hello world", "en-US-standard-a", 1.0)

	tests := []struct {
		name  string
		text  string
		voice string
		rate  float64
	}{
		{"text", "hello there", "en-US-standard-a", 1.0},
		{"voice", "hello world", "en-GB-standard-b", 1.0},
		{"rate", "hello world", "en-US-standard-a", 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.text, tt.voice, tt.rate); got == base {
				t.Errorf("Key() collides with base for changed %s", tt.name)
			}
		})
	}

	if again := Key("hello world", "en-US-standard-a", 1.0); again != base {
		t.Error("Key() not deterministic")
	}
}

// TestDiskRoundTrip tests store and retrieve through compression.
func TestDiskRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	payload := bytes.Repeat([]byte("narration audio "), 512)
	key := Key("some text", "en-US-standard-a", 1.0)

	if _, ok := d.Get(key); ok {
		t.Fatal("Get() = hit on empty cache")
	}
	if err := d.Put(key, payload); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := d.Get(key)
	if !ok {
		t.Fatal("Get() = miss after Put")
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted through compression round trip")
	}
	if !d.Contains(key) {
		t.Error("Contains() = false for stored key")
	}
}

// TestDiskSurvivesReopen tests that a second cache instance sees entries
// written by the first.
func TestDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("persisted "), 256)
	key := Key("persisted text", "local", 1.0)

	first, err := NewDisk(dir, 0)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}
	if err := first.Put(key, payload); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second, err := NewDisk(dir, 0)
	if err != nil {
		t.Fatalf("NewDisk() reopen error = %v", err)
	}
	got, ok := second.Get(key)
	if !ok {
		t.Fatal("Get() = miss after reopen")
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted across reopen")
	}
}

// TestDiskCapacity tests eviction under a tight cap and rejection of
// oversized payloads.
func TestDiskCapacity(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 4096)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	// Incompressible payloads so compressed size tracks input size.
	rng := uint32(0x2545f491)
	noise := func(n int) []byte {
		out := make([]byte, n)
		for i := range out {
			rng ^= rng << 13
			rng ^= rng >> 17
			rng ^= rng << 5
			out[i] = byte(rng)
		}
		return out
	}

	if err := d.Put("huge", noise(8192)); err != ErrItemTooLarge {
		t.Errorf("Put(oversized) error = %v, want ErrItemTooLarge", err)
	}

	for i := 0; i < 8; i++ {
		if err := d.Put(Key(string(rune('a'+i)), "local", 1.0), noise(1024)); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}

	if got := d.Size(); got > 4096 {
		t.Errorf("Size() = %d, want <= capacity 4096", got)
	}
}

// TestDiskClear tests full removal.
func TestDiskClear(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}
	if err := d.Put("k", []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	d.Clear()
	if d.Size() != 0 {
		t.Errorf("Size() = %d after Clear, want 0", d.Size())
	}
	if _, ok := d.Get("k"); ok {
		t.Error("Get() = hit after Clear")
	}
}
