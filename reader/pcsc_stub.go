//go:build !pcsc

package reader

import (
	"context"
	"fmt"
	"time"
)

// errNoPCSC explains how to get PC/SC support into the binary.
var errNoPCSC = fmt.Errorf("%w: built without PC/SC support (rebuild with -tags pcsc)", ErrNoReader)

// PCSC is a stub when built without the pcsc tag.
type PCSC struct{}

// NewPCSC always fails in this build.
func NewPCSC(device string) (*PCSC, error) {
	return nil, errNoPCSC
}

// ListPCSC always fails in this build.
func ListPCSC() ([]string, error) {
	return nil, errNoPCSC
}

// Probe implements Transceiver.Probe.
func (p *PCSC) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	return nil, errNoPCSC
}

// Close implements Transceiver.Close.
func (p *PCSC) Close() error { return nil }
