package narrate

import (
	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate/cache"
)

// PlaybackSession is the aggregate for one narration run: the flattened
// segment list, the position within it, and the synthesis settings audio is
// being produced with. A session exists from Play out of idle until Stop;
// starting a new one implicitly ends the old one.
type PlaybackSession struct {
	Segments     []document.Segment
	CurrentIndex int
	Voice        string
	Rate         float64
}

// NewPlaybackSession creates an idle session with no document.
func NewPlaybackSession(voice string, rate float64) *PlaybackSession {
	if voice == "" {
		voice = DefaultVoice
	}
	return &PlaybackSession{
		CurrentIndex: -1,
		Voice:        voice,
		Rate:         ClampRate(rate),
	}
}

// Params returns the current synthesis settings as a cache validity key.
func (s *PlaybackSession) Params() cache.Params {
	return cache.Params{Voice: s.Voice, Rate: s.Rate}
}

// InRange reports whether index addresses a segment of this session.
func (s *PlaybackSession) InRange(index int) bool {
	return index >= 0 && index < len(s.Segments)
}

// Current returns the segment at the playback position.
func (s *PlaybackSession) Current() document.Segment {
	return s.Segments[s.CurrentIndex]
}

// Reset discards the segment list and position, returning the session to its
// between-documents shape. Settings survive.
func (s *PlaybackSession) Reset() {
	s.Segments = nil
	s.CurrentIndex = -1
}
