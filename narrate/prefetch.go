package narrate

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate/cache"
	"github.com/readwell/narrate/narrate/quota"
)

// PrefetchWindow is how many segments past the playback position are
// synthesized ahead of need.
const PrefetchWindow = 3

// Prefetcher fills the session cache ahead of the playback position. Each
// Schedule call issues a batch of independent fetches sharing one
// cancellation token; CancelBatch aborts them all, and an aborted fetch
// never writes to the cache. At most one fetch is in flight per segment
// index.
type Prefetcher struct {
	engine Engine
	cache  *cache.Session
	quota  *quota.Tracker
	logger *log.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	tickets map[int]struct{}
	wg      sync.WaitGroup
}

// NewPrefetcher creates a prefetcher feeding the given cache from the
// network engine. quota may be nil when no budget applies.
func NewPrefetcher(engine Engine, c *cache.Session, q *quota.Tracker, logger *log.Logger) *Prefetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Prefetcher{
		engine:  engine,
		cache:   c,
		quota:   q,
		logger:  logger,
		tickets: make(map[int]struct{}),
	}
}

// Schedule requests synthesis of up to PrefetchWindow segments following
// from, under the given settings. Indices out of range, already cached,
// already in flight, or over budget are skipped.
func (p *Prefetcher) Schedule(segments []document.Segment, from int, params cache.Params) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.ctx.Err() != nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}

	for i := from + 1; i <= from+PrefetchWindow && i < len(segments); i++ {
		if _, busy := p.tickets[i]; busy {
			continue
		}
		if p.cache.Contains(i, params) {
			continue
		}
		seg := segments[i]
		chars := document.Chars(seg)
		if p.quota != nil && !p.quota.HasBudget(chars) {
			continue
		}

		p.tickets[i] = struct{}{}
		p.wg.Add(1)
		go p.fetch(p.ctx, i, seg.Text, chars, params)
	}
}

// CancelBatch aborts every in-flight fetch.
func (p *Prefetcher) CancelBatch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.ctx, p.cancel = nil, nil
	}
}

// Wait blocks until every in-flight fetch has finished or aborted.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// InFlight returns the number of outstanding fetches.
func (p *Prefetcher) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tickets)
}

func (p *Prefetcher) fetch(ctx context.Context, index int, text string, chars int, params cache.Params) {
	defer func() {
		p.mu.Lock()
		delete(p.tickets, index)
		p.mu.Unlock()
		p.wg.Done()
	}()

	res, err := p.engine.Synthesize(ctx, Request{Text: text, Voice: params.Voice, Rate: params.Rate})
	if err != nil {
		if !IsInterruption(err) {
			p.logger.Debug("prefetch failed", "index", index, "error", err)
		}
		return
	}

	// Commit is serialized with CancelBatch so a cancelled fetch can never
	// write after the batch was aborted.
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		res.Utterance.Cancel()
		return
	}
	p.cache.Put(index, cache.Entry{
		Audio:    res.Utterance,
		Duration: res.Utterance.Duration(),
		Chars:    chars,
		Params:   params,
	})
	p.mu.Unlock()

	if p.quota != nil && res.Characters > 0 && !res.Cached {
		p.quota.RecordUsage(res.Characters)
	}
}
