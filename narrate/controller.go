package narrate

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate/cache"
	"github.com/readwell/narrate/narrate/quota"
)

// estimateInterval is how often a TimeRemainingMsg is emitted while a
// session is active.
const estimateInterval = time.Second

// Controller owns narration playback: the state machine, the position, the
// per-segment engine choice, and the prefetch pipeline. Transport commands
// are serialized; a new command always cancels or suspends whatever the
// active engine is doing first, so two engines never produce audio at once.
//
// Synthesis runs asynchronously. Every utterance carries the generation it
// was started under; any transport command bumps the generation, which
// orphans in-flight work and stale completion events.
type Controller struct {
	remote Engine
	local  Engine
	quota  *quota.Tracker
	cache  *cache.Session
	pf     *Prefetcher
	logger *log.Logger

	events chan tea.Msg

	mu          sync.Mutex
	machine     *StateMachine
	session     *PlaybackSession
	current     audio.Handle
	started     bool // current has begun producing output
	engineName  string
	gen         int
	errStreak   int
	synthCancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithSettings sets the initial voice and rate.
func WithSettings(voice string, rate float64) ControllerOption {
	return func(c *Controller) {
		c.session = NewPlaybackSession(voice, rate)
	}
}

// NewController creates an idle controller. quota may be nil to disable
// budget gating entirely, in which case the network engine is always
// eligible.
func NewController(remote, local Engine, q *quota.Tracker, opts ...ControllerOption) *Controller {
	c := &Controller{
		remote:  remote,
		local:   local,
		quota:   q,
		cache:   cache.NewSession(),
		logger:  log.Default(),
		events:  make(chan tea.Msg, 128),
		machine: NewStateMachine(),
		session: NewPlaybackSession(DefaultVoice, DefaultRate),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pf = NewPrefetcher(remote, c.cache, q, c.logger)

	go c.estimateLoop()
	return c
}

// Events returns the channel UI messages are delivered on. Messages are
// dropped rather than blocking playback when the consumer falls behind.
func (c *Controller) Events() <-chan tea.Msg {
	return c.events
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Snapshot returns the current state for UI consumption.
func (c *Controller) Snapshot() SnapshotMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// QuotaRemaining returns the network character budget left this month, or 0
// when no tracker is configured.
func (c *Controller) QuotaRemaining() int {
	if c.quota == nil {
		return 0
	}
	return c.quota.Remaining()
}

// Play starts narration of doc from the beginning, or resumes when paused.
// Playing while already playing is a no-op; to narrate a different document,
// Stop first.
func (c *Controller) Play(doc *document.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.machine.Current() {
	case StatePlaying:
		return nil

	case StatePaused:
		c.machine.Transition(StatePlaying)
		if c.current != nil {
			if c.started {
				c.current.Resume()
			} else {
				c.current.Play()
				c.started = true
			}
		}
		c.emit(c.snapshotLocked())
		return nil

	default: // StateIdle
		segments := document.Flatten(doc)
		if len(segments) == 0 {
			return ErrNoSegments
		}
		c.session.Segments = segments
		c.session.CurrentIndex = 0
		c.errStreak = 0
		c.machine.Transition(StatePlaying)
		c.startLocked()
		c.emit(c.snapshotLocked())
		return nil
	}
}

// Pause suspends the active output without discarding it.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.machine.Transition(StatePaused) {
		return ErrInvalidTransition
	}
	if c.current != nil && c.started {
		c.current.Pause()
	}
	c.emit(c.snapshotLocked())
	return nil
}

// Stop cancels all output and pending work and returns to idle. Stopping an
// idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current() == StateIdle {
		return nil
	}
	c.stopLocked()
	return nil
}

// Next moves narration forward one segment. At the last segment the index
// stays put but the segment restarts.
func (c *Controller) Next() error {
	return c.seek(1)
}

// Previous moves narration back one segment. At the first segment the index
// stays put but the segment restarts.
func (c *Controller) Previous() error {
	return c.seek(-1)
}

func (c *Controller) seek(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current() == StateIdle {
		return ErrInvalidTransition
	}

	target := c.session.CurrentIndex + delta
	if target < 0 {
		target = 0
	}
	if last := len(c.session.Segments) - 1; target > last {
		target = last
	}
	c.session.CurrentIndex = target

	if c.machine.Current() == StatePaused {
		c.machine.Transition(StatePlaying)
	}
	c.startLocked()
	c.emit(c.snapshotLocked())
	return nil
}

// SetVoice applies a voice change. All cached and in-flight audio for the
// old settings is discarded; if playing, the current segment restarts under
// the new voice.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if voice == "" || voice == c.session.Voice {
		return
	}
	c.session.Voice = voice
	c.applySettingsLocked()
}

// SetRate applies a rate change with the same invalidation as SetVoice.
func (c *Controller) SetRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate = ClampRate(rate)
	if rate == c.session.Rate {
		return
	}
	c.session.Rate = rate
	c.applySettingsLocked()
}

// Close stops playback and releases the controller's goroutines.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		c.stopLocked()
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// TimeRemaining returns the current remaining-time estimate.
func (c *Controller) TimeRemaining() Estimate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimateLocked()
}

// applySettingsLocked implements the shared tail of a settings change.
func (c *Controller) applySettingsLocked() {
	c.pf.CancelBatch()
	c.cache.EvictAll()

	if c.machine.Current() == StatePlaying {
		c.startLocked()
	}
	c.emit(c.snapshotLocked())
}

// startLocked begins asynchronous synthesis of the current segment,
// cancelling whatever was active. Callers must hold c.mu.
func (c *Controller) startLocked() {
	c.gen++
	gen := c.gen

	if c.synthCancel != nil {
		c.synthCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.synthCancel = cancel

	if c.current != nil {
		c.current.Cancel()
		c.current = nil
		c.started = false
	}

	index := c.session.CurrentIndex
	seg := c.session.Current()
	params := c.session.Params()

	go c.synthesize(ctx, gen, index, seg, params)
}

// stopLocked releases everything and returns to idle. Callers must hold
// c.mu.
func (c *Controller) stopLocked() {
	c.gen++
	if c.synthCancel != nil {
		c.synthCancel()
		c.synthCancel = nil
	}
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
		c.started = false
	}
	c.pf.CancelBatch()
	c.cache.EvictAll()
	c.session.Reset()
	c.errStreak = 0
	c.engineName = ""
	c.machine.Transition(StateIdle)
	c.emit(c.snapshotLocked())
}

// synthesize produces the utterance for one segment off the lock, then
// hands it to attach. Runs in its own goroutine.
func (c *Controller) synthesize(ctx context.Context, gen, index int, seg document.Segment, params cache.Params) {
	if e, ok := c.cache.Take(index, params); ok {
		// Cached audio only ever comes from the network engine.
		c.attach(gen, index, e.Audio, EngineRemote)
		return
	}

	req := Request{Text: seg.Text, Voice: params.Voice, Rate: params.Rate}
	res, name, err := c.selectAndSynthesize(ctx, req)
	if err != nil {
		if !IsInterruption(err) {
			c.fail(gen, index, err)
		}
		return
	}

	if c.quota != nil && res.Characters > 0 && !res.Cached {
		c.quota.RecordUsage(res.Characters)
	}
	c.attach(gen, index, res.Utterance, name)
}

// selectAndSynthesize applies the per-segment engine policy: an explicit
// local voice uses the on-device engine, a sufficient budget attempts the
// network engine, and any network failure falls back to the on-device
// engine without surfacing an error.
func (c *Controller) selectAndSynthesize(ctx context.Context, req Request) (*Result, string, error) {
	if req.Voice == VoiceLocal {
		res, err := c.local.Synthesize(ctx, req)
		return res, EngineLocal, err
	}

	chars := len([]rune(req.Text))
	if c.quota == nil || c.quota.HasBudget(chars) {
		res, err := c.remote.Synthesize(ctx, req)
		if err == nil {
			return res, EngineRemote, nil
		}
		if IsInterruption(err) {
			return nil, EngineRemote, err
		}
		c.logger.Warn("network synthesis failed, falling back to device",
			"error", err)
	}

	res, err := c.local.Synthesize(ctx, req)
	return res, EngineLocal, err
}

// attach installs a freshly synthesized utterance as the active one, unless
// a newer transition has made it stale.
func (c *Controller) attach(gen, index int, h audio.Handle, name string) {
	c.mu.Lock()

	if gen != c.gen {
		c.mu.Unlock()
		h.Cancel()
		return
	}

	c.current = h
	c.engineName = name
	if c.machine.Current() == StatePlaying {
		if err := h.Play(); err != nil {
			c.mu.Unlock()
			c.fail(gen, index, err)
			return
		}
		c.started = true
	}

	c.emit(SegmentStartedMsg{
		Index:    index,
		Text:     c.session.Segments[index].Text,
		Engine:   name,
		Duration: h.Duration(),
	})
	c.emit(c.snapshotLocked())
	c.mu.Unlock()

	go c.watch(gen, index, h)
	if br, ok := h.(audio.BoundaryReporter); ok {
		go c.forwardBoundaries(gen, index, br)
	}

	if name == EngineRemote {
		c.mu.Lock()
		if gen == c.gen {
			c.pf.Schedule(c.session.Segments, index, c.session.Params())
		}
		c.mu.Unlock()
	}
}

// watch waits for the active utterance to finish and advances, ignores, or
// fails depending on how it ended.
func (c *Controller) watch(gen, index int, h audio.Handle) {
	err := <-h.Done()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.started = false

	switch {
	case err == nil:
		c.errStreak = 0
		c.advanceLocked()
	case IsInterruption(err):
		// Replaced by a newer transition.
	default:
		c.failLocked(index, err)
	}
	c.mu.Unlock()
}

// forwardBoundaries relays word-boundary events while the utterance that
// produced them is still current.
func (c *Controller) forwardBoundaries(gen, index int, br audio.BoundaryReporter) {
	for wb := range br.WordBoundaries() {
		c.mu.Lock()
		live := gen == c.gen
		c.mu.Unlock()
		if !live {
			return
		}
		c.emit(WordBoundaryMsg{SegmentIndex: index, CharIndex: wb.CharIndex})
	}
}

// advanceLocked moves past a completed segment. Callers must hold c.mu.
func (c *Controller) advanceLocked() {
	next := c.session.CurrentIndex + 1
	if next >= len(c.session.Segments) {
		c.stopLocked()
		return
	}
	c.session.CurrentIndex = next
	c.startLocked()
	c.emit(c.snapshotLocked())
}

// fail reports a genuine synthesis or playback failure from off the lock.
func (c *Controller) fail(gen, index int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.failLocked(index, err)
}

// failLocked applies the error policy: skip forward once, stop on the
// second consecutive failure. Callers must hold c.mu.
func (c *Controller) failLocked(index int, err error) {
	c.logger.Error("segment playback failed", "index", index, "error", err)
	c.errStreak++

	if c.errStreak >= 2 {
		c.emit(PlaybackErrorMsg{Index: index, Err: err, Skipped: false})
		c.stopLocked()
		return
	}
	c.emit(PlaybackErrorMsg{Index: index, Err: err, Skipped: true})
	c.advanceLocked()
}

// estimateLoop emits the remaining-time estimate on a fixed cadence while a
// session is active.
func (c *Controller) estimateLoop() {
	ticker := time.NewTicker(estimateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.machine.Current() == StateIdle {
			c.mu.Unlock()
			continue
		}
		est := c.estimateLocked()
		c.mu.Unlock()

		c.emit(TimeRemainingMsg{Remaining: est.Remaining, Approximate: est.Approximate})
	}
}

// estimateLocked computes the remaining-time estimate. Callers must hold
// c.mu.
func (c *Controller) estimateLocked() Estimate {
	var elapsed, active time.Duration
	if c.current != nil {
		elapsed = c.current.Elapsed()
		active = c.current.Duration()
	}
	return EstimateRemaining(c.session, c.cache, c.engineName, elapsed, active)
}

// snapshotLocked builds the UI state snapshot. Callers must hold c.mu.
func (c *Controller) snapshotLocked() SnapshotMsg {
	state := c.machine.Current()
	return SnapshotMsg{
		IsPlaying:    state == StatePlaying,
		IsPaused:     state == StatePaused,
		Rate:         c.session.Rate,
		Voice:        c.session.Voice,
		CurrentIndex: c.session.CurrentIndex,
		TotalCount:   len(c.session.Segments),
		EngineName:   c.engineName,
	}
}

// emit delivers a message without ever blocking playback.
func (c *Controller) emit(msg tea.Msg) {
	select {
	case c.events <- msg:
	default:
	}
}
