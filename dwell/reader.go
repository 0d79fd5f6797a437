package dwell

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"tapflow/reader"
)

// Reader drives a transceiver to produce one stable identifier per dwell
// and to detect when the card leaves.
type Reader struct {
	tr     reader.Transceiver
	policy Policy
	wait   Waiter
}

// NewReader creates a Reader. A nil waiter sleeps for real.
func NewReader(tr reader.Transceiver, policy Policy, wait Waiter) *Reader {
	if wait == nil {
		wait = RealWaiter{}
	}
	return &Reader{tr: tr, policy: policy.WithDefaults(), wait: wait}
}

// ReadStable blocks until a card gives a clean identifier read or ctx is
// cancelled. It reports false only on cancellation. Failed reads are
// expected noise and are logged, never returned.
func (r *Reader) ReadStable(ctx context.Context) (reader.UID, bool) {
	for ctx.Err() == nil {
		presence, err := r.tr.Probe(ctx, r.policy.PollInterval)
		if err != nil {
			if errors.Is(err, reader.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			log.Debugf("Probe: %v", err)
			// Don't spin on a reader that errors immediately
			if r.wait.Wait(ctx, r.policy.SettleDelay) != nil {
				return nil, false
			}
			continue
		}

		if uid, ok := r.readPresence(ctx, presence); ok {
			return uid, true
		}
		// No clean read in this window; probe again rather than reuse a
		// presence the card may already have left.
	}
	return nil, false
}

func (r *Reader) readPresence(ctx context.Context, presence reader.Presence) (reader.UID, bool) {
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}

		uid, err := readOnce(presence)
		if err == nil {
			if r.wait.Wait(ctx, r.policy.SettleDelay) != nil {
				return nil, false
			}
			return uid, true
		}
		log.Debugf("Read attempt %d/%d: %v", attempt, r.policy.MaxAttempts, err)

		if r.wait.Wait(ctx, r.policy.SettleDelay) != nil {
			return nil, false
		}
	}
	return nil, false
}

// readOnce runs one connect, GET UID, release cycle. The session is
// released on every path.
func readOnce(presence reader.Presence) (reader.UID, error) {
	session, err := presence.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			log.Debugf("Release session: %v", err)
		}
	}()

	payload, status, err := session.Transmit(reader.GetUIDCommand)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	if status != reader.StatusSuccess || len(payload) == 0 {
		return nil, fmt.Errorf("%w: status %04X, %d byte payload", reader.ErrReadFailure, status, len(payload))
	}
	return append(reader.UID(nil), payload...), nil
}

// AwaitRemoval blocks until a probe finds no card, reporting true, or until
// ctx is cancelled, reporting false. The first empty probe counts as removal.
func (r *Reader) AwaitRemoval(ctx context.Context) bool {
	for ctx.Err() == nil {
		_, err := r.tr.Probe(ctx, r.policy.RemovalPollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if !errors.Is(err, reader.ErrTimeout) {
				log.Debugf("Probe during removal wait: %v", err)
			}
			return true
		}
		if r.wait.Wait(ctx, r.policy.RemovalSettle) != nil {
			return false
		}
	}
	return false
}
