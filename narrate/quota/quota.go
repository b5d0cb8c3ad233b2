// Package quota tracks the rolling monthly character budget that gates use
// of the network synthesis engine.
package quota

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultLimit is the monthly character cap applied when no limit has been
// configured.
const DefaultLimit = 1_000_000

// Record is the persisted quota state. The record is lazily reset: whenever
// it is read or written after ResetAt has passed, Used drops to zero and a
// fresh monthly window opens.
type Record struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"resetAt"`
}

// Store persists a Record across sessions.
type Store interface {
	// Load returns the stored record and whether one existed.
	Load() (Record, bool, error)
	// Save writes the record.
	Save(Record) error
}

// Tracker owns the quota record and is the only mutator of it.
type Tracker struct {
	mu    sync.Mutex
	rec   Record
	store Store
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLimit overrides the monthly character cap.
func WithLimit(limit int) Option {
	return func(t *Tracker) { t.rec.Limit = limit }
}

// NewTracker loads the persisted record from store, falling back to an empty
// record with a fresh monthly window when the store is empty or unreadable.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}

	rec, ok, err := store.Load()
	if err != nil {
		log.Warn("quota record unreadable, starting fresh", "error", err)
		ok = false
	}
	if ok && rec.Limit > 0 && !rec.ResetAt.IsZero() {
		t.rec = rec
	} else {
		t.rec = Record{Limit: DefaultLimit}
	}

	for _, opt := range opts {
		opt(t)
	}
	if t.rec.ResetAt.IsZero() {
		t.rec.ResetAt = nextReset(t.now())
	}
	return t
}

// HasBudget reports whether chars more characters fit under the limit this
// month. The lazy reset check runs first.
func (t *Tracker) HasBudget(chars int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeReset()
	return t.rec.Used+chars < t.rec.Limit
}

// RecordUsage adds chars to the amount consumed this month and persists the
// record.
func (t *Tracker) RecordUsage(chars int) {
	if chars <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeReset()
	t.rec.Used += chars
	t.persist()
}

// Snapshot returns a copy of the current record after the lazy reset check.
func (t *Tracker) Snapshot() Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeReset()
	return t.rec
}

// Remaining returns how many characters are left this month.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeReset()
	if r := t.rec.Limit - t.rec.Used; r > 0 {
		return r
	}
	return 0
}

// maybeReset opens a new monthly window if the old one has ended.
// Callers must hold t.mu.
func (t *Tracker) maybeReset() {
	now := t.now()
	if now.Before(t.rec.ResetAt) {
		return
	}
	t.rec.Used = 0
	t.rec.ResetAt = nextReset(now)
	t.persist()
}

// persist writes the record, logging rather than failing: quota persistence
// is advisory and must never break playback. Callers must hold t.mu.
func (t *Tracker) persist() {
	if err := t.store.Save(t.rec); err != nil {
		log.Warn("failed to persist quota record", "error", err)
	}
}

// nextReset returns the first instant of the calendar month after now.
func nextReset(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())
}
