// Package dwell turns noisy card reads into one event per physical
// presentation of a card.
package dwell

import (
	"context"
	"fmt"
	"time"
)

// ResetPolicy decides when a finished dwell re-arms the tracker.
type ResetPolicy string

const (
	// ResetOnRemoval forgets the card once removal is confirmed, so putting
	// the same card back triggers again.
	ResetOnRemoval ResetPolicy = "removal"

	// ResetOnChange only re-arms when a different card is read.
	ResetOnChange ResetPolicy = "change"
)

// Policy bounds every wait and retry of the read loop.
type Policy struct {
	MaxAttempts         int           `yaml:"max_attempts"`          // connect+read cycles per probe
	PollInterval        time.Duration `yaml:"poll_interval"`         // probe window while waiting for a card
	SettleDelay         time.Duration `yaml:"settle_delay"`          // pause between and after read attempts
	RemovalPollInterval time.Duration `yaml:"removal_poll_interval"` // probe window while waiting for removal
	RemovalSettle       time.Duration `yaml:"removal_settle"`        // pause while the card is still present
	Reset               ResetPolicy   `yaml:"reset"`
}

// DefaultPolicy matches the timings the readers were tuned with.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         10,
		PollInterval:        500 * time.Millisecond,
		SettleDelay:         100 * time.Millisecond,
		RemovalPollInterval: 300 * time.Millisecond,
		RemovalSettle:       200 * time.Millisecond,
		Reset:               ResetOnRemoval,
	}
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.SettleDelay <= 0 {
		p.SettleDelay = d.SettleDelay
	}
	if p.RemovalPollInterval <= 0 {
		p.RemovalPollInterval = d.RemovalPollInterval
	}
	if p.RemovalSettle <= 0 {
		p.RemovalSettle = d.RemovalSettle
	}
	if p.Reset == "" {
		p.Reset = d.Reset
	}
	return p
}

// Validate rejects policies the loop cannot run with.
func (p Policy) Validate() error {
	switch p.Reset {
	case ResetOnRemoval, ResetOnChange:
	default:
		return fmt.Errorf("unknown reset policy %q", p.Reset)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.PollInterval <= 0 || p.RemovalPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}

// Waiter pauses the loop. Tests inject one that returns immediately.
type Waiter interface {
	// Wait blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Wait(ctx context.Context, d time.Duration) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, d time.Duration) error

// Wait implements Waiter.
func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealWaiter sleeps on a timer.
type RealWaiter struct{}

// Wait implements Waiter.
func (RealWaiter) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
