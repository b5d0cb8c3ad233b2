// Package audio provides PCM utilities and playable audio handles for the
// narration engine. All audio inside the engine is normalized to 16-bit
// little-endian mono PCM at 44100 Hz before it reaches an output device.
package audio

import (
	"errors"
	"time"
)

// Audio format used throughout the engine.
const (
	// SampleRate is the fixed output sample rate in Hz.
	SampleRate = 44100
	// Channels is the number of output channels (mono).
	Channels = 1
	// BitDepth is the sample bit depth.
	BitDepth = 16
	// BytesPerSample is the number of bytes per mono sample.
	BytesPerSample = BitDepth / 8 * Channels
)

// ErrInterrupted is delivered on a handle's Done channel when playback was
// cancelled rather than finishing or failing. It is expected during normal
// operation and must not be treated as a failure.
var ErrInterrupted = errors.New("audio: playback interrupted")

// ErrHandleClosed is returned by operations on a cancelled handle.
var ErrHandleClosed = errors.New("audio: handle closed")

// Handle is a ready-to-play audio resource attached to an output device.
// Exactly one value is delivered on Done: nil on natural completion,
// ErrInterrupted after Cancel, or a playback error. Cancel releases the
// underlying resource; it is safe to call more than once but releases
// exactly once.
type Handle interface {
	Play() error
	Pause() error
	Resume() error
	Cancel()
	Done() <-chan error
	Duration() time.Duration
	Elapsed() time.Duration
}

// WordBoundary is one word-boundary event: the rune offset of a word about to
// be spoken within the utterance's text.
type WordBoundary struct {
	CharIndex int
}

// BoundaryReporter is implemented by handles that can report word boundaries
// while playing. Only on-device synthesis provides this; network audio
// supports segment-level granularity only.
type BoundaryReporter interface {
	WordBoundaries() <-chan WordBoundary
}

// Device creates playable handles from normalized PCM.
type Device interface {
	NewHandle(pcm []byte) (Handle, error)
}

// Duration returns the play time of normalized PCM of the given length.
func Duration(pcmLen int) time.Duration {
	samples := pcmLen / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}

// PCMLen returns the normalized PCM length for the given play time, aligned
// to whole samples.
func PCMLen(d time.Duration) int {
	samples := int(d * SampleRate / time.Second)
	return samples * BytesPerSample
}
