package reader

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sim is an in-memory reader for bench testing. Cards are placed and
// removed by calling Present and Remove, usually from the event pipe.
type Sim struct {
	mu      sync.Mutex
	uid     UID
	flaky   int           // number of upcoming transmits that fail
	changed chan struct{} // closed and replaced on every state change
	closed  bool
}

// NewSim creates an empty simulated reader.
func NewSim() *Sim {
	return &Sim{changed: make(chan struct{})}
}

// Present places a card on the simulated antenna, replacing any other.
func (s *Sim) Present(uid UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = append(UID(nil), uid...)
	s.notify()
}

// Remove takes the card off the antenna.
func (s *Sim) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = nil
	s.notify()
}

// Flaky makes the next n identifier transactions fail.
func (s *Sim) Flaky(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flaky = n
}

// Current returns the card on the antenna, or nil.
func (s *Sim) Current() UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// notify must be called with mu held.
func (s *Sim) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Probe implements Transceiver.Probe.
func (s *Sim) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		uid, changed, closed := s.uid, s.changed, s.closed
		s.mu.Unlock()

		if closed {
			return nil, fmt.Errorf("simulated reader closed")
		}
		if uid != nil {
			return &simPresence{sim: s, uid: uid}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrTimeout
		case <-changed:
		}
	}
}

// Close implements Transceiver.Close.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.notify()
	}
	return nil
}

type simPresence struct {
	sim *Sim
	uid UID
}

func (p *simPresence) Connect() (Session, error) {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	if !p.uid.Equal(p.sim.uid) {
		return nil, fmt.Errorf("%w: card left the field", ErrReadFailure)
	}
	return &simSession{p: p}, nil
}

type simSession struct {
	p        *simPresence
	released bool
}

func (s *simSession) Transmit(cmd []byte) ([]byte, uint16, error) {
	sim := s.p.sim
	sim.mu.Lock()
	defer sim.mu.Unlock()

	if s.released {
		return nil, 0, fmt.Errorf("transmit on released session")
	}
	if !s.p.uid.Equal(sim.uid) {
		return nil, 0, fmt.Errorf("%w: card left the field", ErrReadFailure)
	}
	if sim.flaky > 0 {
		sim.flaky--
		return nil, 0x6300, nil
	}
	return (&frameSession{p: &framePresence{uid: s.p.uid, status: StatusSuccess}}).Transmit(cmd)
}

func (s *simSession) Release() error {
	s.released = true
	return nil
}
