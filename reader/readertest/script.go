// Package readertest provides a scripted reader.Transceiver for tests.
package readertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tapflow/reader"
)

// Step is the result of one Probe call.
type Step struct {
	// UID is the card found by the probe. Nil means the probe times out.
	UID reader.UID

	// Failures is how many transmits fail before reads succeed.
	// A negative value makes every transmit fail.
	Failures int

	// Status overrides the failing status word (default 0x6300).
	Status uint16

	// ConnectErr makes every Connect on this presence fail.
	ConnectErr error
}

// Present is a probe that finds uid and reads it cleanly.
func Present(uid string) Step {
	return Step{UID: MustUID(uid)}
}

// Flaky is a probe that finds uid but fails the first n reads.
func Flaky(uid string, n int) Step {
	return Step{UID: MustUID(uid), Failures: n}
}

// Empty is a probe that times out.
func Empty() Step {
	return Step{}
}

// MustUID parses a hex uid or panics.
func MustUID(s string) reader.UID {
	uid, err := reader.ParseUID(s)
	if err != nil {
		panic(err)
	}
	return uid
}

// Script replays steps in order. Once the steps run out it calls Done
// (typically a context cancel) and reports timeouts.
type Script struct {
	mu    sync.Mutex
	steps []Step
	pos   int

	// Done is called once when the script is exhausted.
	Done func()

	Probes    int
	Connects  int
	Transmits int
	Releases  int
}

// New creates a script over steps.
func New(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Open reports sessions connected but not yet released.
func (s *Script) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Connects - s.Releases
}

// Remaining reports how many steps have not been probed yet.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.pos
}

// Probe implements reader.Transceiver.Probe.
func (s *Script) Probe(ctx context.Context, timeout time.Duration) (reader.Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.Probes++
	if s.pos >= len(s.steps) {
		done := s.Done
		s.Done = nil
		s.mu.Unlock()
		if done != nil {
			done()
		}
		return nil, reader.ErrTimeout
	}
	step := s.steps[s.pos]
	s.pos++
	s.mu.Unlock()

	if step.UID == nil {
		return nil, reader.ErrTimeout
	}
	return &presence{s: s, step: step}, nil
}

// Close implements reader.Transceiver.Close.
func (s *Script) Close() error {
	return nil
}

type presence struct {
	s     *Script
	step  Step
	reads int
}

func (p *presence) Connect() (reader.Session, error) {
	if p.step.ConnectErr != nil {
		return nil, p.step.ConnectErr
	}
	p.s.mu.Lock()
	p.s.Connects++
	p.s.mu.Unlock()
	return &session{p: p}, nil
}

type session struct {
	p *presence
}

func (s *session) Transmit(cmd []byte) ([]byte, uint16, error) {
	p := s.p
	p.s.mu.Lock()
	p.s.Transmits++
	p.s.mu.Unlock()

	p.reads++
	if p.step.Failures < 0 || p.reads <= p.step.Failures {
		status := p.step.Status
		if status == 0 {
			status = 0x6300
		}
		// A StatusSuccess override still fails: the payload is empty.
		return nil, status, nil
	}
	if len(cmd) == 0 {
		return nil, 0, fmt.Errorf("empty command")
	}
	return append([]byte(nil), p.step.UID...), reader.StatusSuccess, nil
}

func (s *session) Release() error {
	s.p.s.mu.Lock()
	s.p.s.Releases++
	s.p.s.mu.Unlock()
	return nil
}
