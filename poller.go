package lunalove

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// PollInterval is the cadence the fallback poller wakes up on.
	PollInterval = 5000 * time.Millisecond
	// PollCooldown is the minimum gap between two consecutive fetches.
	PollCooldown = 3000 * time.Millisecond
	// PollRateLimitPenalty replaces the cooldown for the single window
	// following a rate-limited fetch.
	PollRateLimitPenalty = 10000 * time.Millisecond
)

type fetchFunc func(ctx context.Context) error

// fallbackPoller drives periodic fetches while the push channel is down.
// All fetches run on a single goroutine; suspend and resume only gate
// whether a wakeup does work.
type fallbackPoller struct {
	clock Clock
	log   Logger
	fetch fetchFunc

	mu        sync.Mutex
	suspended bool
	forceNext bool

	// touched only from the run goroutine
	lastFetch time.Time
	hasFetch  bool
	effective time.Duration

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func newFallbackPoller(clock Clock, log Logger, fetch fetchFunc) *fallbackPoller {
	return &fallbackPoller{
		clock:     clock,
		log:       log,
		fetch:     fetch,
		effective: PollCooldown,
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// start launches the poll loop. The first fetch happens immediately unless
// the poller is already suspended.
func (p *fallbackPoller) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

func (p *fallbackPoller) run(ctx context.Context) {
	defer close(p.done)

	p.tick(ctx)

	ticker := p.clock.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.tick(ctx)
		case <-p.kick:
			p.tick(ctx)
		}
	}
}

func (p *fallbackPoller) tick(ctx context.Context) {
	p.mu.Lock()
	suspended := p.suspended
	p.mu.Unlock()
	if suspended {
		return
	}
	p.fetchNow(ctx)
}

// fetchNow runs one fetch honoring the cooldown but not the suspended
// flag. Callers use it before start to seed the timeline.
func (p *fallbackPoller) fetchNow(ctx context.Context) {
	p.mu.Lock()
	force := p.forceNext
	p.forceNext = false
	p.mu.Unlock()

	now := p.clock.Now()
	if !force && p.hasFetch && now.Before(p.lastFetch.Add(p.effective)) {
		return
	}

	err := p.fetch(ctx)
	switch {
	case err == nil:
		p.lastFetch = now
		p.hasFetch = true
		p.effective = PollCooldown
	case errors.Is(err, ErrRateLimited):
		// The penalty covers exactly one window; the next successful
		// fetch restores the base cooldown.
		p.lastFetch = now
		p.hasFetch = true
		p.effective = PollRateLimitPenalty
	case errors.Is(err, context.Canceled):
	default:
		p.log.Printf("poll fetch failed: %v", err)
	}
}

// suspend stops fetching without tearing down the loop. Wakeups still
// fire and are discarded.
func (p *fallbackPoller) suspend() {
	p.mu.Lock()
	p.suspended = true
	p.mu.Unlock()
}

// resume re-enables fetching and requests an immediate tick. The tick
// bypasses the cooldown once, so fallback entry catches up on whatever the
// dead push channel missed without waiting out the current window.
func (p *fallbackPoller) resume() {
	p.mu.Lock()
	p.suspended = false
	p.forceNext = true
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *fallbackPoller) stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}
