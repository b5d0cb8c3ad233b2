package narrate

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/document"
)

// mockEngine is a scriptable Engine backed by a MockDevice.
type mockEngine struct {
	name   string
	device *audio.MockDevice

	mu       sync.Mutex
	calls    []Request
	failNext error
	failAll  error

	// block, when non-nil, holds Synthesize until closed or the context is
	// cancelled.
	block chan struct{}

	// wrapBoundaries makes produced handles report word boundaries pushed
	// via pushBoundary.
	wrapBoundaries bool
	boundaries     chan audio.WordBoundary
}

// boundaryHandle adds word-boundary reporting to a mock handle.
type boundaryHandle struct {
	*audio.MockHandle
	ch chan audio.WordBoundary
}

func (h *boundaryHandle) WordBoundaries() <-chan audio.WordBoundary { return h.ch }

func newMockEngine(name string, device *audio.MockDevice) *mockEngine {
	return &mockEngine{name: name, device: device}
}

func (e *mockEngine) Name() string { return e.name }

func (e *mockEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	fail := e.failAll
	if fail == nil {
		fail = e.failNext
		e.failNext = nil
	}
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		return nil, fail
	}

	h, err := e.device.NewHandle(make([]byte, audio.PCMLen(100*time.Millisecond)))
	if err != nil {
		return nil, err
	}

	var out audio.Handle = h
	if e.wrapBoundaries {
		e.mu.Lock()
		if e.boundaries == nil {
			e.boundaries = make(chan audio.WordBoundary, 16)
		}
		out = &boundaryHandle{MockHandle: h.(*audio.MockHandle), ch: e.boundaries}
		e.mu.Unlock()
	}
	return &Result{Utterance: out, Characters: len([]rune(req.Text))}, nil
}

func (e *mockEngine) pushBoundary(wb audio.WordBoundary) {
	e.mu.Lock()
	ch := e.boundaries
	e.mu.Unlock()
	if ch != nil {
		ch <- wb
	}
}

func (e *mockEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *mockEngine) callTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Text
	}
	return out
}

// threeSegmentDoc flattens to ["Intro", "Section A", "Section B"].
func threeSegmentDoc() *document.Document {
	return &document.Document{
		Title: "Intro",
		Sections: []document.Section{
			{Heading: "Section A"},
			{Heading: "Section B"},
		},
	}
}

// waitMsg drains the controller's events until a message of type T arrives.
func waitMsg[T tea.Msg](t *testing.T, c *Controller) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.Events():
			if m, ok := msg.(T); ok {
				return m
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// waitSegmentStarted waits for narration of a specific index to begin.
func waitSegmentStarted(t *testing.T, c *Controller, index int) SegmentStartedMsg {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.Events():
			if m, ok := msg.(SegmentStartedMsg); ok && m.Index == index {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for segment %d to start", index)
			return SegmentStartedMsg{}
		}
	}
}

// settle polls until cond holds or the deadline passes.
func settle(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}
