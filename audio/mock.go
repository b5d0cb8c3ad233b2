package audio

import (
	"sync"
	"time"
)

// MockDevice is an in-memory Device for tests. It records every handle it
// creates so tests can assert on playback and release behavior without a
// sound card.
type MockDevice struct {
	mu      sync.Mutex
	handles []*MockHandle

	// FailNext makes the next NewHandle call return this error once.
	FailNext error
}

// NewMockDevice creates a mock audio device.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// NewHandle creates a mock handle whose duration is derived from the PCM
// length like the real device.
func (d *MockDevice) NewHandle(pcm []byte) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailNext != nil {
		err := d.FailNext
		d.FailNext = nil
		return nil, err
	}

	h := &MockHandle{
		duration: Duration(len(pcm)),
		done:     make(chan error, 1),
	}
	d.handles = append(d.handles, h)
	return h, nil
}

// Handles returns every handle created so far.
func (d *MockDevice) Handles() []*MockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockHandle, len(d.handles))
	copy(out, d.handles)
	return out
}

// MockHandle is a manually driven Handle. Tests call Complete or Fail to
// simulate the end of playback.
type MockHandle struct {
	duration time.Duration

	mu         sync.Mutex
	playing    bool
	paused     bool
	elapsed    time.Duration
	PlayCalls  int
	PauseCalls int
	// CancelCalls counts Cancel invocations; Releases counts actual
	// releases and must never exceed 1.
	CancelCalls int
	Releases    int

	done   chan error
	finish sync.Once
}

// Play implements Handle.
func (h *MockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.PlayCalls++
	h.playing = true
	h.paused = false
	return nil
}

// Pause implements Handle.
func (h *MockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.PauseCalls++
	if h.playing {
		h.paused = true
		h.playing = false
	}
	return nil
}

// Resume implements Handle.
func (h *MockHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		h.paused = false
		h.playing = true
	}
	return nil
}

// Cancel implements Handle; the release is counted exactly once.
func (h *MockHandle) Cancel() {
	h.mu.Lock()
	h.CancelCalls++
	h.mu.Unlock()

	h.finish.Do(func() {
		h.mu.Lock()
		h.Releases++
		h.playing = false
		h.paused = false
		h.mu.Unlock()
		h.done <- ErrInterrupted
	})
}

// Done implements Handle.
func (h *MockHandle) Done() <-chan error {
	return h.done
}

// Duration implements Handle.
func (h *MockHandle) Duration() time.Duration {
	return h.duration
}

// SetDuration overrides the derived duration for estimator tests.
func (h *MockHandle) SetDuration(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.duration = d
}

// Elapsed implements Handle.
func (h *MockHandle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elapsed
}

// SetElapsed sets the reported playback position.
func (h *MockHandle) SetElapsed(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.elapsed = d
}

// IsPlaying reports whether the handle is currently producing output.
func (h *MockHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// IsPaused reports whether the handle is suspended mid-utterance.
func (h *MockHandle) IsPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Complete simulates natural end of playback.
func (h *MockHandle) Complete() {
	h.finish.Do(func() {
		h.mu.Lock()
		h.Releases++
		h.playing = false
		h.mu.Unlock()
		h.done <- nil
	})
}

// Fail simulates a playback error.
func (h *MockHandle) Fail(err error) {
	h.finish.Do(func() {
		h.mu.Lock()
		h.Releases++
		h.playing = false
		h.mu.Unlock()
		h.done <- err
	})
}
