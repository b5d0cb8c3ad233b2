// Package narrate drives adaptive text-to-speech playback of structured
// documents. It owns the playback state machine, selects between a network
// and an on-device synthesis engine per segment, prefetches upcoming audio,
// and tracks the monthly character quota that gates network synthesis.
package narrate

import (
	"context"

	"github.com/readwell/narrate/audio"
)

// Voice identifiers and rate bounds.
const (
	// VoiceLocal selects on-device synthesis explicitly.
	VoiceLocal = "local"
	// DefaultVoice is the network voice used when none is configured.
	DefaultVoice = "en-US-standard-a"

	// DefaultRate is the playback rate multiplier applied by default.
	DefaultRate = 1.0
	// MinRate and MaxRate bound the configurable rate.
	MinRate = 0.5
	MaxRate = 2.0
)

// Engine names, as reported by Engine.Name.
const (
	// EngineRemote is the network-backed engine.
	EngineRemote = "remote"
	// EngineLocal is the on-device engine.
	EngineLocal = "local"
)

// ClampRate bounds a rate to the configurable range, substituting the
// default for non-positive or NaN-ish input.
func ClampRate(rate float64) float64 {
	if !(rate > 0) {
		return DefaultRate
	}
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

// Request is one synthesis job.
type Request struct {
	Text  string
	Voice string
	Rate  float64
}

// Result is a prepared utterance. The handle is device-attached with the
// rate already applied, ready to Play without further work.
//
// Characters is the number of characters the synthesis consumed against the
// monthly quota; it is zero when no quota applies. Cached reports that the
// audio came from persistent storage rather than a fresh network call, in
// which case no quota is consumed either.
type Result struct {
	Utterance  audio.Handle
	Characters int
	Cached     bool
}

// Engine synthesizes one utterance per call. Implementations must honor
// context cancellation on any blocking work and must not leak the handle on
// error: a non-nil error means no handle was allocated.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
