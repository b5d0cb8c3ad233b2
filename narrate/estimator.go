package narrate

import (
	"time"

	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate/cache"
)

// HeuristicCharsPerMinute is the assumed narration pace at rate 1.0, used
// when no synthesized audio exists to measure.
const HeuristicCharsPerMinute = 900

// Estimate is a remaining-time figure. Approximate is set whenever any part
// of the total came from the pace heuristic rather than measured audio.
type Estimate struct {
	Remaining   time.Duration
	Approximate bool
}

// HeuristicDuration estimates narration time for a character count at the
// given rate.
func HeuristicDuration(chars int, rate float64) time.Duration {
	if chars <= 0 {
		return 0
	}
	rate = ClampRate(rate)
	perMinute := HeuristicCharsPerMinute * rate
	return time.Duration(float64(chars) / perMinute * float64(time.Minute))
}

// EstimateRemaining computes remaining narration time from the playback
// position onward.
//
// While network audio is playing, the active utterance contributes its
// measured duration minus elapsed, and each upcoming segment contributes its
// cached duration when a valid entry exists, falling back to the heuristic.
// While on-device audio is playing, everything from the current segment's
// text onward is heuristic.
func EstimateRemaining(s *PlaybackSession, c *cache.Session, engineName string, elapsed, active time.Duration) Estimate {
	if s == nil || !s.InRange(s.CurrentIndex) {
		return Estimate{}
	}

	if engineName == EngineLocal {
		chars := document.TotalChars(s.Segments, s.CurrentIndex)
		return Estimate{
			Remaining:   HeuristicDuration(chars, s.Rate),
			Approximate: true,
		}
	}

	var est Estimate
	if remaining := active - elapsed; remaining > 0 {
		est.Remaining = remaining
	}

	params := s.Params()
	for i := s.CurrentIndex + 1; i < len(s.Segments); i++ {
		if d, ok := c.Duration(i, params); ok {
			est.Remaining += d
			continue
		}
		est.Remaining += HeuristicDuration(document.Chars(s.Segments[i]), s.Rate)
		est.Approximate = true
	}
	return est
}
