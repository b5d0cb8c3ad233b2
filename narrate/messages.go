package narrate

import (
	"time"
)

// Messages emitted on the controller's event channel for UI consumption.
// They satisfy tea.Msg (any) and can be forwarded straight into a Bubble
// Tea program.

// SnapshotMsg is the controller's state as of the latest transition.
type SnapshotMsg struct {
	IsPlaying    bool
	IsPaused     bool
	Rate         float64
	Voice        string
	CurrentIndex int
	TotalCount   int
	EngineName   string
}

// SegmentStartedMsg indicates narration of a segment has begun. The UI
// scrolls to and highlights the segment on receipt.
type SegmentStartedMsg struct {
	Index    int
	Text     string
	Engine   string
	Duration time.Duration
}

// WordBoundaryMsg indicates the next spoken word within the current segment.
// Only emitted while an on-device utterance is playing.
type WordBoundaryMsg struct {
	SegmentIndex int
	CharIndex    int
}

// TimeRemainingMsg carries the periodic remaining-time estimate.
type TimeRemainingMsg struct {
	Remaining   time.Duration
	Approximate bool
}

// PlaybackErrorMsg indicates a segment could not be synthesized or played.
// Skipped reports whether the controller moved on to the next segment;
// when false, playback has stopped.
type PlaybackErrorMsg struct {
	Index   int
	Err     error
	Skipped bool
}
