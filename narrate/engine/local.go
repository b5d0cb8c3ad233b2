package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/narrate"
)

// Defaults for the on-device engine.
const (
	// defaultSpeakerBinary is the speech synthesizer invoked as a
	// subprocess.
	defaultSpeakerBinary = "espeak-ng"
	// defaultSpeakerVoice is the synthesizer voice used for every request;
	// the session's voice identifier selects engines, not device voices.
	defaultSpeakerVoice = "en-us"

	// baseWordsPerMinute is the speaking pace at rate 1.0.
	baseWordsPerMinute = 175
	// DefaultPitch is the synthesizer pitch on its 0-99 scale.
	DefaultPitch = 50

	boundaryPollInterval = 30 * time.Millisecond
)

// synthFunc produces WAV data for text at the given pace and pitch.
type synthFunc func(ctx context.Context, text string, wpm, pitch int) ([]byte, error)

// Local synthesizes speech on-device via a subprocess synthesizer. Unlike
// the network engine it emits word-boundary events while playing, scheduled
// heuristically across the utterance duration in proportion to character
// offsets.
type Local struct {
	device audio.Device
	pitch  int
	logger *log.Logger
	synth  synthFunc
}

// LocalOption configures a Local engine.
type LocalOption func(*Local)

// WithPitch sets the synthesizer pitch (0-99).
func WithPitch(pitch int) LocalOption {
	return func(l *Local) {
		if pitch >= 0 && pitch <= 99 {
			l.pitch = pitch
		}
	}
}

// WithLocalLogger sets the structured logger.
func WithLocalLogger(logger *log.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// WithSynthFunc replaces the subprocess synthesizer, for tests.
func WithSynthFunc(fn synthFunc) LocalOption {
	return func(l *Local) { l.synth = fn }
}

// NewLocal creates an on-device engine preparing handles on device.
func NewLocal(device audio.Device, opts ...LocalOption) *Local {
	l := &Local{
		device: device,
		pitch:  DefaultPitch,
		logger: log.Default(),
		synth:  speakSubprocess,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements narrate.Engine.
func (l *Local) Name() string { return narrate.EngineLocal }

// Available reports whether the synthesizer binary can be found.
func (l *Local) Available() bool {
	_, err := exec.LookPath(defaultSpeakerBinary)
	return err == nil
}

// Synthesize implements narrate.Engine. On-device synthesis costs no quota;
// the result always reports zero characters.
func (l *Local) Synthesize(ctx context.Context, req narrate.Request) (*narrate.Result, error) {
	rate := narrate.ClampRate(req.Rate)
	wpm := int(baseWordsPerMinute * rate)

	wav, err := l.synth(ctx, req.Text, wpm, l.pitch)
	if err != nil {
		return nil, err
	}
	pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("device synthesis output: %w", err)
	}

	h, err := l.device.NewHandle(pcm)
	if err != nil {
		return nil, err
	}

	return &narrate.Result{
		Utterance: newBoundaryHandle(h, req.Text),
	}, nil
}

// speakSubprocess runs the synthesizer binary, collecting WAV from stdout.
func speakSubprocess(ctx context.Context, text string, wpm, pitch int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, defaultSpeakerBinary,
		"--stdout",
		"-v", defaultSpeakerVoice,
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitch),
		"--", text,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", defaultSpeakerBinary, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no audio", defaultSpeakerBinary)
	}
	return stdout.Bytes(), nil
}

// boundaryHandle wraps a playable handle with heuristic word-boundary
// events: each word's boundary fires when playback reaches the word's
// proportional position in the text.
type boundaryHandle struct {
	audio.Handle

	boundaries []scheduledBoundary
	events     chan audio.WordBoundary

	quit     chan struct{}
	quitOnce sync.Once
}

type scheduledBoundary struct {
	at        time.Duration
	charIndex int
}

func newBoundaryHandle(h audio.Handle, text string) *boundaryHandle {
	b := &boundaryHandle{
		Handle: h,
		events: make(chan audio.WordBoundary, 32),
		quit:   make(chan struct{}),
	}
	b.boundaries = scheduleBoundaries(text, h.Duration())
	go b.run()
	return b
}

// WordBoundaries implements audio.BoundaryReporter.
func (b *boundaryHandle) WordBoundaries() <-chan audio.WordBoundary {
	return b.events
}

// Cancel implements audio.Handle.
func (b *boundaryHandle) Cancel() {
	b.quitOnce.Do(func() { close(b.quit) })
	b.Handle.Cancel()
}

// run emits boundaries as playback passes their scheduled positions. It
// polls elapsed time rather than wall time, so pauses hold boundaries in
// place for free. run is the only sender on and closer of the events
// channel, so consumers always unblock.
func (b *boundaryHandle) run() {
	ticker := time.NewTicker(boundaryPollInterval)
	defer ticker.Stop()

	total := b.Handle.Duration()
	next := 0
	for {
		select {
		case <-b.quit:
			close(b.events)
			return
		case <-ticker.C:
		}

		elapsed := b.Handle.Elapsed()
		for next < len(b.boundaries) && b.boundaries[next].at <= elapsed {
			select {
			case b.events <- audio.WordBoundary{CharIndex: b.boundaries[next].charIndex}:
			default:
			}
			next++
		}

		if next >= len(b.boundaries) {
			close(b.events)
			return
		}
		if total > 0 && elapsed >= total {
			close(b.events)
			return
		}
	}
}

// scheduleBoundaries assigns each word's boundary a position in time
// proportional to its rune offset in the text.
func scheduleBoundaries(text string, total time.Duration) []scheduledBoundary {
	totalRunes := utf8.RuneCountInString(text)
	if totalRunes == 0 || total <= 0 {
		return nil
	}

	var out []scheduledBoundary
	inWord := false
	runeIndex := 0
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			at := time.Duration(float64(total) * float64(runeIndex) / float64(totalRunes))
			out = append(out, scheduledBoundary{at: at, charIndex: runeIndex})
			inWord = true
		}
		if isSpace {
			inWord = false
		}
		runeIndex++
	}
	return out
}
