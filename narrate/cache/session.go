// Package cache holds synthesized narration audio. The session cache keeps
// prepared, device-attached utterances keyed by segment index for the
// document being read; the disk cache persists raw network audio across
// sessions.
package cache

import (
	"sync"
	"time"

	"github.com/readwell/narrate/audio"
)

// Params are the synthesis settings an utterance was produced with. A cached
// utterance is only valid while the session's settings still match.
type Params struct {
	Voice string
	Rate  float64
}

// Entry is one prepared utterance.
type Entry struct {
	Audio    audio.Handle
	Duration time.Duration
	Chars    int
	Params   Params
}

// Stats counts session cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Stale     int64
	Evictions int64
}

// Session caches prepared utterances by segment index. Entries own their
// audio handles: evicting an entry cancels its handle, and Take transfers
// ownership to the caller. All methods are safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	entries map[int]Entry
	stats   Stats
}

// NewSession creates an empty session cache.
func NewSession() *Session {
	return &Session{entries: make(map[int]Entry)}
}

// Put stores an utterance for a segment. Any previous entry at the same
// index is evicted first so its handle is never leaked.
func (s *Session) Put(index int, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[index]; ok {
		s.release(old)
	}
	s.entries[index] = e
}

// Take removes and returns the utterance for a segment if one exists and its
// settings match want. A present entry with stale settings is evicted and
// reported as a miss.
func (s *Session) Take(index int, want Params) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[index]
	if !ok {
		s.stats.Misses++
		return Entry{}, false
	}
	delete(s.entries, index)

	if e.Params != want {
		s.stats.Stale++
		s.stats.Misses++
		s.release(e)
		return Entry{}, false
	}

	s.stats.Hits++
	return e, true
}

// Contains reports whether a valid entry exists for the segment without
// removing it.
func (s *Session) Contains(index int, want Params) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[index]
	return ok && e.Params == want
}

// Duration returns the play time of a valid cached utterance without
// removing it. Used by the time estimator.
func (s *Session) Duration(index int, want Params) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[index]
	if !ok || e.Params != want {
		return 0, false
	}
	return e.Duration, true
}

// EvictAll cancels and drops every cached utterance. Used when settings
// change or the document is closed.
func (s *Session) EvictAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for index, e := range s.entries {
		s.release(e)
		delete(s.entries, index)
	}
}

// Len returns the number of cached utterances.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns a copy of the activity counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// release cancels an entry's handle. Callers must hold s.mu.
func (s *Session) release(e Entry) {
	if e.Audio != nil {
		e.Audio.Cancel()
	}
	s.stats.Evictions++
}
