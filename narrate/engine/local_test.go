package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/narrate"
)

// fakeWAV wraps normalized PCM in a minimal RIFF/WAVE container.
func fakeWAV(pcm []byte) []byte {
	data := make([]byte, 44+len(pcm))
	copy(data[0:], "RIFF")
	binary.LittleEndian.PutUint32(data[4:], uint32(36+len(pcm)))
	copy(data[8:], "WAVE")
	copy(data[12:], "fmt ")
	binary.LittleEndian.PutUint32(data[16:], 16)
	binary.LittleEndian.PutUint16(data[20:], 1)
	binary.LittleEndian.PutUint16(data[22:], 1)
	binary.LittleEndian.PutUint32(data[24:], uint32(audio.SampleRate))
	binary.LittleEndian.PutUint32(data[28:], uint32(audio.SampleRate*2))
	binary.LittleEndian.PutUint16(data[32:], 2)
	binary.LittleEndian.PutUint16(data[34:], 16)
	copy(data[36:], "data")
	binary.LittleEndian.PutUint32(data[40:], uint32(len(pcm)))
	copy(data[44:], pcm)
	return data
}

// TestLocalSynthesize tests WAV decoding, quota exemption, and boundary
// capability.
func TestLocalSynthesize(t *testing.T) {
	device := audio.NewMockDevice()
	var gotWPM int
	l := NewLocal(device, WithSynthFunc(func(ctx context.Context, text string, wpm, pitch int) ([]byte, error) {
		gotWPM = wpm
		return fakeWAV(make([]byte, audio.PCMLen(time.Second))), nil
	}))

	res, err := l.Synthesize(context.Background(), narrate.Request{
		Text: "hello world", Voice: narrate.VoiceLocal, Rate: 2.0,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if res.Characters != 0 {
		t.Errorf("Characters = %d, want 0 for on-device synthesis", res.Characters)
	}
	if gotWPM != 350 {
		t.Errorf("wpm = %d at rate 2.0, want 350", gotWPM)
	}
	if _, ok := res.Utterance.(audio.BoundaryReporter); !ok {
		t.Error("utterance does not report word boundaries")
	}
	if got := res.Utterance.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
	res.Utterance.Cancel()
}

// TestLocalSynthesizeErrors tests failure propagation.
func TestLocalSynthesizeErrors(t *testing.T) {
	device := audio.NewMockDevice()

	t.Run("synthesizer failure", func(t *testing.T) {
		want := errors.New("binary missing")
		l := NewLocal(device, WithSynthFunc(func(ctx context.Context, text string, wpm, pitch int) ([]byte, error) {
			return nil, want
		}))
		if _, err := l.Synthesize(context.Background(), narrate.Request{Text: "x", Rate: 1.0}); !errors.Is(err, want) {
			t.Errorf("Synthesize() error = %v, want %v", err, want)
		}
	})

	t.Run("malformed output", func(t *testing.T) {
		l := NewLocal(device, WithSynthFunc(func(ctx context.Context, text string, wpm, pitch int) ([]byte, error) {
			return []byte("definitely not wav"), nil
		}))
		if _, err := l.Synthesize(context.Background(), narrate.Request{Text: "x", Rate: 1.0}); err == nil {
			t.Error("Synthesize() error = nil for malformed output")
		}
	})
}

// TestScheduleBoundaries tests proportional placement of word boundaries.
func TestScheduleBoundaries(t *testing.T) {
	// 15 runes; words begin at offsets 0, 6, and 12.
	got := scheduleBoundaries("hello world foo", 15*time.Second)

	want := []scheduledBoundary{
		{at: 0, charIndex: 0},
		{at: 6 * time.Second, charIndex: 6},
		{at: 12 * time.Second, charIndex: 12},
	}
	if len(got) != len(want) {
		t.Fatalf("boundaries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].charIndex != want[i].charIndex {
			t.Errorf("boundary %d charIndex = %d, want %d", i, got[i].charIndex, want[i].charIndex)
		}
		if got[i].at != want[i].at {
			t.Errorf("boundary %d at = %v, want %v", i, got[i].at, want[i].at)
		}
	}

	if b := scheduleBoundaries("", time.Second); b != nil {
		t.Errorf("boundaries for empty text = %v, want nil", b)
	}
	if b := scheduleBoundaries("text", 0); b != nil {
		t.Errorf("boundaries for zero duration = %v, want nil", b)
	}
}

// TestBoundaryHandleEmission tests that boundaries fire as playback
// progresses and the channel closes after the last word.
func TestBoundaryHandleEmission(t *testing.T) {
	device := audio.NewMockDevice()
	inner, _ := device.NewHandle(make([]byte, audio.PCMLen(time.Second)))
	mock := inner.(*audio.MockHandle)

	// "ab cd": words at rune offsets 0 and 3 of 5, so 0ms and 600ms.
	h := newBoundaryHandle(inner, "ab cd")
	if err := h.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	mock.SetElapsed(time.Second)

	var got []int
	deadline := time.After(2 * time.Second)
	for {
		select {
		case wb, ok := <-h.WordBoundaries():
			if !ok {
				if len(got) != 2 || got[0] != 0 || got[1] != 3 {
					t.Errorf("boundaries = %v, want [0 3]", got)
				}
				return
			}
			got = append(got, wb.CharIndex)
		case <-deadline:
			t.Fatalf("boundaries never completed, got %v", got)
		}
	}
}

// TestBoundaryHandleCancelCloses tests that Cancel unblocks consumers.
func TestBoundaryHandleCancelCloses(t *testing.T) {
	device := audio.NewMockDevice()
	inner, _ := device.NewHandle(make([]byte, audio.PCMLen(time.Minute)))

	h := newBoundaryHandle(inner, "one two three")
	h.Cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-h.WordBoundaries():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("WordBoundaries never closed after Cancel")
		}
	}
}
