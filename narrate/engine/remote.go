// Package engine provides the two synthesis backends behind the narrate
// Engine contract: a network-backed engine producing higher-fidelity audio
// and an on-device engine that also reports word boundaries.
package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/narrate"
	"github.com/readwell/narrate/narrate/cache"
)

// Defaults for the network engine.
const (
	// DefaultTimeout bounds one synthesis round trip. Expiry is treated as
	// a network failure, which triggers fallback to the device engine.
	DefaultTimeout = 15 * time.Second

	// Request pacing toward the synthesis endpoint.
	requestsPerSecond = 2
	requestBurst      = 4
)

// synthesisRequest is the wire format of the synthesis endpoint.
type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// synthesisResponse is the endpoint's reply. AudioContent is base64 MP3.
type synthesisResponse struct {
	AudioContent   string `json:"audioContent"`
	CharacterCount int    `json:"characterCount"`
}

// Remote synthesizes speech through an HTTP endpoint. Raw network audio is
// persisted in the disk cache so repeated reads of the same text cost no
// quota and no round trip.
type Remote struct {
	endpoint string
	client   *http.Client
	device   audio.Device
	disk     *cache.Disk
	limiter  *rate.Limiter
	logger   *log.Logger

	// decode turns the endpoint's audio payload into normalized PCM.
	// Overridable for tests.
	decode func([]byte) ([]byte, error)
}

// RemoteOption configures a Remote engine.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithDiskCache attaches persistent audio storage. Without it every
// synthesis is a network call.
func WithDiskCache(d *cache.Disk) RemoteOption {
	return func(r *Remote) { r.disk = d }
}

// WithDecoder replaces the audio payload decoder.
func WithDecoder(decode func([]byte) ([]byte, error)) RemoteOption {
	return func(r *Remote) { r.decode = decode }
}

// WithRemoteLogger sets the structured logger.
func WithRemoteLogger(logger *log.Logger) RemoteOption {
	return func(r *Remote) { r.logger = logger }
}

// NewRemote creates a network engine posting to endpoint and preparing
// playable handles on device.
func NewRemote(endpoint string, device audio.Device, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		device:   device,
		limiter:  rate.NewLimiter(requestsPerSecond, requestBurst),
		logger:   log.Default(),
		decode:   audio.DecodeMP3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements narrate.Engine.
func (r *Remote) Name() string { return narrate.EngineRemote }

// Synthesize implements narrate.Engine. The returned handle carries the
// requested rate baked into its samples.
func (r *Remote) Synthesize(ctx context.Context, req narrate.Request) (*narrate.Result, error) {
	key := cache.Key(req.Text, req.Voice, 1.0)

	if r.disk != nil {
		if payload, ok := r.disk.Get(key); ok {
			h, err := r.prepare(payload, req.Rate)
			if err == nil {
				return &narrate.Result{Utterance: h, Cached: true}, nil
			}
			r.logger.Warn("cached audio unreadable, refetching", "error", err)
		}
	}

	payload, chars, err := r.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if r.disk != nil {
		if err := r.disk.Put(key, payload); err != nil {
			r.logger.Debug("disk cache write failed", "error", err)
		}
	}

	h, err := r.prepare(payload, req.Rate)
	if err != nil {
		return nil, err
	}
	return &narrate.Result{Utterance: h, Characters: chars}, nil
}

// fetch performs one rate-limited synthesis round trip.
func (r *Remote) fetch(ctx context.Context, req narrate.Request) ([]byte, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(synthesisRequest{Text: req.Text, Voice: req.Voice})
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, 0, fmt.Errorf("synthesis endpoint returned %s", resp.Status)
	}

	var sr synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	payload, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return nil, 0, fmt.Errorf("decode audio content: %w", err)
	}
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("synthesis endpoint returned no audio")
	}
	return payload, sr.CharacterCount, nil
}

// prepare decodes the payload and attaches it to the output device with the
// rate applied.
func (r *Remote) prepare(payload []byte, rrate float64) (audio.Handle, error) {
	pcm, err := r.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if rrate != 1.0 {
		pcm = audio.Stretch(pcm, rrate)
	}
	return r.device.NewHandle(pcm)
}
