package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/narrate"
	"github.com/readwell/narrate/narrate/cache"
)

// identityDecode lets tests serve raw PCM instead of real MP3 data.
func identityDecode(payload []byte) ([]byte, error) { return payload, nil }

// synthServer fakes the synthesis endpoint, serving pcm for every request.
func synthServer(t *testing.T, pcm []byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Text == "" || req.Voice == "" {
			t.Error("request missing text or voice")
		}

		json.NewEncoder(w).Encode(synthesisResponse{
			AudioContent:   base64.StdEncoding.EncodeToString(pcm),
			CharacterCount: len(req.Text),
		})
	}))
}

// TestRemoteSynthesize tests the request/response round trip.
func TestRemoteSynthesize(t *testing.T) {
	pcm := make([]byte, audio.PCMLen(time.Second))
	var hits atomic.Int64
	srv := synthServer(t, pcm, &hits)
	defer srv.Close()

	device := audio.NewMockDevice()
	r := NewRemote(srv.URL, device, WithDecoder(identityDecode))

	res, err := r.Synthesize(context.Background(), narrate.Request{
		Text:  "Hello there",
		Voice: narrate.DefaultVoice,
		Rate:  1.0,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if res.Characters != len("Hello there") {
		t.Errorf("Characters = %d, want %d", res.Characters, len("Hello there"))
	}
	if res.Cached {
		t.Error("Cached = true for a fresh network call")
	}
	if got := res.Utterance.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
}

// TestRemoteDiskCacheHit tests that repeated requests skip the network and
// cost no quota.
func TestRemoteDiskCacheHit(t *testing.T) {
	pcm := make([]byte, audio.PCMLen(time.Second))
	var hits atomic.Int64
	srv := synthServer(t, pcm, &hits)
	defer srv.Close()

	disk, err := cache.NewDisk(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	device := audio.NewMockDevice()
	r := NewRemote(srv.URL, device, WithDecoder(identityDecode), WithDiskCache(disk))
	req := narrate.Request{Text: "Cache me", Voice: narrate.DefaultVoice, Rate: 1.0}

	first, err := r.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("first Synthesize() error = %v", err)
	}
	if first.Cached {
		t.Error("first call reported cached")
	}

	second, err := r.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("second Synthesize() error = %v", err)
	}
	if !second.Cached {
		t.Error("second call not served from disk")
	}
	if second.Characters != 0 {
		t.Errorf("cached Characters = %d, want 0", second.Characters)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hits = %d, want 1", got)
	}
}

// TestRemoteRateBakedIn tests that the handle's samples carry the rate.
func TestRemoteRateBakedIn(t *testing.T) {
	pcm := make([]byte, audio.PCMLen(2*time.Second))
	var hits atomic.Int64
	srv := synthServer(t, pcm, &hits)
	defer srv.Close()

	device := audio.NewMockDevice()
	r := NewRemote(srv.URL, device, WithDecoder(identityDecode))

	res, err := r.Synthesize(context.Background(), narrate.Request{
		Text: "fast", Voice: narrate.DefaultVoice, Rate: 2.0,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	got := res.Utterance.Duration()
	diff := got - time.Second
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Millisecond {
		t.Errorf("Duration() = %v at rate 2.0, want about 1s", got)
	}
}

// TestRemoteFailures tests error surfaces that must trigger engine fallback.
func TestRemoteFailures(t *testing.T) {
	device := audio.NewMockDevice()

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		r := NewRemote(srv.URL, device, WithDecoder(identityDecode))
		if _, err := r.Synthesize(context.Background(), narrate.Request{Text: "x", Voice: "v", Rate: 1.0}); err == nil {
			t.Error("Synthesize() error = nil, want failure on 503")
		}
	})

	t.Run("garbage audio content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(synthesisResponse{AudioContent: "!!not-base64!!", CharacterCount: 1})
		}))
		defer srv.Close()

		r := NewRemote(srv.URL, device, WithDecoder(identityDecode))
		if _, err := r.Synthesize(context.Background(), narrate.Request{Text: "x", Voice: "v", Rate: 1.0}); err == nil {
			t.Error("Synthesize() error = nil, want decode failure")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := NewRemote("http://127.0.0.1:0", device, WithDecoder(identityDecode))
		_, err := r.Synthesize(ctx, narrate.Request{Text: "x", Voice: "v", Rate: 1.0})
		if err == nil {
			t.Error("Synthesize() error = nil with cancelled context")
		}
	})
}
