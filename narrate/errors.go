package narrate

import (
	"context"
	"errors"

	"github.com/readwell/narrate/audio"
)

// Common errors for the narration engine.
var (
	// ErrNoSegments is returned when a document flattens to nothing
	// speakable.
	ErrNoSegments = errors.New("document has no speakable segments")

	// ErrInvalidTransition is returned when a transport command is not
	// valid in the current state.
	ErrInvalidTransition = errors.New("invalid playback state transition")

	// ErrEngineUnavailable is returned when no synthesis engine can serve
	// a request.
	ErrEngineUnavailable = errors.New("no synthesis engine available")

	// ErrSynthesisFailed wraps a genuine synthesis failure after all
	// fallbacks were exhausted.
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// IsInterruption reports whether err is an expected cancellation rather than
// a genuine failure. Interruptions happen on every transport command that
// replaces the active utterance and must never be logged as errors.
func IsInterruption(err error) bool {
	return errors.Is(err, audio.ErrInterrupted) || errors.Is(err, context.Canceled)
}
