package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TickClock paces ticks.
type Mode int

const (
	// RealTime starts a tick at most once per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated starts the next tick as soon as the previous one is done.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// TickFunc runs one simulation tick.
type TickFunc func(ctx context.Context, tick int) error

// TickClock drives a fixed number of sequential ticks and notifies
// registered listeners after each one. A tick never starts before the
// previous one has returned.
type TickClock struct {
	mu       sync.RWMutex
	Interval time.Duration
	Mode     Mode
	// Total is the number of ticks to run. Zero or negative runs until the
	// context is cancelled.
	Total int

	current   int
	listeners []func(tick, total int)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTickClock constructs a clock for total ticks.
func NewTickClock(total int, interval time.Duration, mode Mode) *TickClock {
	return &TickClock{
		Interval: interval,
		Mode:     mode,
		Total:    total,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Current returns the number of completed ticks.
func (c *TickClock) Current() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// AddListener registers a callback invoked after every completed tick with
// the number of completed ticks and the configured total.
func (c *TickClock) AddListener(fn func(tick, total int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Done reports whether every configured tick has run.
func (c *TickClock) Done() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Total > 0 && c.current >= c.Total
}

func (c *TickClock) advance() {
	c.mu.Lock()
	c.current++
	tick, total := c.current, c.Total
	listeners := append([]func(int, int){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(tick, total)
	}
}

// Run calls fn once per tick. The context is checked at every tick
// boundary; cancellation returns ctx.Err() without starting another tick.
// An error from fn stops the run and is returned as is.
func (c *TickClock) Run(ctx context.Context, fn TickFunc) error {
	for !c.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := c.now()
		if err := fn(ctx, c.Current()); err != nil {
			return err
		}
		c.advance()

		if c.Mode == RealTime && !c.Done() {
			if wait := c.Interval - c.now().Sub(started); wait > 0 {
				if err := c.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
