package engine

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/exstem-prep/internal/model"
)

// Countdown is the single authoritative clock of a session. It decrements once
// per Tick while running and fires onExpire exactly once when it reaches zero.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	stopped   bool
	onExpire  func()
	onTick    func(remaining int)
	stopOnce  sync.Once
	done      chan struct{}
}

// NewCountdown creates a countdown of totalSeconds. Either callback may be nil.
// Callbacks run without the countdown lock held.
func NewCountdown(totalSeconds int, onTick func(int), onExpire func()) *Countdown {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return &Countdown{
		remaining: totalSeconds,
		onExpire:  onExpire,
		onTick:    onTick,
		done:      make(chan struct{}),
	}
}

// Start ticks once per real second until the countdown stops or ctx ends.
func (c *Countdown) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Tick advances the clock by one second.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if c.stopped || c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.stopped = true
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired {
		c.Stop()
		if c.onExpire != nil {
			c.onExpire()
		}
	}
}

// Stop freezes the clock at its current value. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.done) })
}

// Remaining is the number of whole seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stopped reports whether the clock no longer advances.
func (c *Countdown) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// TimeBudget derives a session's total duration from its test kind.
type TimeBudget struct {
	Full               time.Duration
	SecondsPerQuestion int
}

// SecondsFor returns the countdown length for a blueprint.
func (b TimeBudget) SecondsFor(bp Blueprint) int {
	if bp.Kind == model.TestKindSubject && b.SecondsPerQuestion > 0 {
		return bp.TotalQuestions() * b.SecondsPerQuestion
	}
	return int(b.Full.Seconds())
}
