//go:build pcsc

package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
	log "github.com/sirupsen/logrus"
)

// PCSC implements Transceiver for contactless readers behind a PC/SC daemon.
type PCSC struct {
	ctx  *scard.Context
	name string
}

// NewPCSC opens the PC/SC context and picks a reader. An empty device
// selects the best scoring contactless reader.
func NewPCSC(device string) (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}

	names, err := ctx.ListReaders()
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("list readers: %w: %w", ErrNoReader, err)
	}

	name, err := SelectReader(names, device)
	if err != nil {
		ctx.Release()
		return nil, err
	}

	log.Printf("Using PC/SC reader %q", name)
	return &PCSC{ctx: ctx, name: name}, nil
}

// ListPCSC returns the reader names known to the PC/SC daemon.
func ListPCSC() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}
	defer ctx.Release()

	names, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return names, nil
}

// Probe implements Transceiver.Probe.
func (p *PCSC) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rs := []scard.ReaderState{{Reader: p.name, CurrentState: scard.StateUnaware}}
	if err := p.ctx.GetStatusChange(rs, 0); err != nil && !errors.Is(err, scard.ErrTimeout) {
		return nil, fmt.Errorf("reader status: %w", err)
	}
	if rs[0].EventState&scard.StatePresent != 0 {
		return &pcscPresence{p: p}, nil
	}

	// Wait for the state to change away from what we just saw.
	rs[0].CurrentState = rs[0].EventState &^ scard.StateChanged
	err := p.ctx.GetStatusChange(rs, timeout)
	if errors.Is(err, scard.ErrTimeout) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("wait for card: %w", err)
	}
	if rs[0].EventState&scard.StatePresent == 0 {
		return nil, ErrTimeout
	}
	return &pcscPresence{p: p}, nil
}

// Close implements Transceiver.Close.
func (p *PCSC) Close() error {
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Release()
}

type pcscPresence struct {
	p *PCSC
}

func (pp *pcscPresence) Connect() (Session, error) {
	card, err := pp.p.ctx.Connect(pp.p.name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", pp.p.name, err)
	}
	return &pcscSession{card: card}, nil
}

type pcscSession struct {
	card *scard.Card
}

func (s *pcscSession) Transmit(cmd []byte) ([]byte, uint16, error) {
	resp, err := s.card.Transmit(cmd)
	if err != nil {
		return nil, 0, fmt.Errorf("transmit: %w", err)
	}
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: short response (%d bytes)", ErrReadFailure, len(resp))
	}
	n := len(resp)
	status := uint16(resp[n-2])<<8 | uint16(resp[n-1])
	return resp[:n-2], status, nil
}

func (s *pcscSession) Release() error {
	return s.card.Disconnect(scard.LeaveCard)
}
