package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output is the real audio device, backed by an oto context. oto permits a
// single context per process, so Output should be created once and shared.
type Output struct {
	ctx *oto.Context
}

// NewOutput opens the system audio device.
func NewOutput() (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Output{ctx: ctx}, nil
}

// NewHandle wraps normalized PCM in a ready-to-play handle. The oto player
// is created immediately so that starting playback later has no setup cost.
func (o *Output) NewHandle(pcm []byte) (Handle, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: empty pcm payload")
	}
	h := &otoHandle{
		player:   o.ctx.NewPlayer(bytes.NewReader(pcm)),
		duration: Duration(len(pcm)),
		done:     make(chan error, 1),
		stop:     make(chan struct{}),
	}
	return h, nil
}

type handleState int

const (
	handleIdle handleState = iota
	handlePlaying
	handlePaused
	handleFinished
)

// otoHandle drives one oto player through a single play/pause/finish cycle.
type otoHandle struct {
	player   *oto.Player
	duration time.Duration

	mu        sync.Mutex
	state     handleState
	playedFor time.Duration // accumulated play time before the current run
	startedAt time.Time     // start of the current run, valid while playing

	done   chan error
	finish sync.Once
	stop   chan struct{}
}

// Play starts playback. A handle plays once; playing a finished handle is an
// error.
func (h *otoHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case handlePlaying:
		return nil
	case handleFinished:
		return ErrHandleClosed
	case handlePaused:
		// Resume semantics for callers that use Play uniformly. The
		// monitor goroutine from the first Play is still running.
		h.player.Play()
		h.state = handlePlaying
		h.startedAt = time.Now()
		return nil
	}

	h.player.Play()
	h.state = handlePlaying
	h.startedAt = time.Now()
	go h.monitor()
	return nil
}

// Pause suspends output without discarding the player or its position.
func (h *otoHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != handlePlaying {
		return nil
	}
	h.player.Pause()
	h.playedFor += time.Since(h.startedAt)
	h.state = handlePaused
	return nil
}

// Resume continues from the paused position.
func (h *otoHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case handleFinished:
		return ErrHandleClosed
	case handlePaused:
		h.player.Play()
		h.state = handlePlaying
		h.startedAt = time.Now()
	}
	return nil
}

// Cancel stops playback and releases the player. Safe to call repeatedly;
// the release happens exactly once.
func (h *otoHandle) Cancel() {
	h.finish.Do(func() {
		h.mu.Lock()
		if h.state == handlePlaying {
			h.playedFor += time.Since(h.startedAt)
		}
		h.state = handleFinished
		h.mu.Unlock()

		close(h.stop)
		_ = h.player.Close()
		h.done <- ErrInterrupted
	})
}

// Done delivers the single completion value for this handle.
func (h *otoHandle) Done() <-chan error {
	return h.done
}

// Duration returns the total play time of the handle's audio.
func (h *otoHandle) Duration() time.Duration {
	return h.duration
}

// Elapsed returns how much of the audio has been played so far.
func (h *otoHandle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.playedFor
	if h.state == handlePlaying {
		e += time.Since(h.startedAt)
	}
	if e > h.duration {
		e = h.duration
	}
	return e
}

// monitor watches the player for natural completion. oto reports IsPlaying
// false once the reader is drained and the buffer has been consumed.
func (h *otoHandle) monitor() {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			paused := h.state == handlePaused
			finished := h.state == handleFinished
			playing := h.player.IsPlaying()
			h.mu.Unlock()

			if finished {
				return
			}
			if paused || playing {
				continue
			}
			h.complete(nil)
			return
		}
	}
}

func (h *otoHandle) complete(err error) {
	h.finish.Do(func() {
		h.mu.Lock()
		if h.state == handlePlaying {
			h.playedFor += time.Since(h.startedAt)
		}
		h.state = handleFinished
		h.mu.Unlock()

		_ = h.player.Close()
		h.done <- err
	})
}
