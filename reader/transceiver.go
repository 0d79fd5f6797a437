package reader

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StatusSuccess is the ISO 7816 status word returned with a good response.
const StatusSuccess uint16 = 0x9000

// Status words reported by the framed readers when a frame is unusable.
const (
	statusChecksum  uint16 = 0x6F00
	statusMalformed uint16 = 0x6A80
)

// GetUIDCommand is the PC/SC pseudo-APDU that returns the card serial number.
var GetUIDCommand = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

var (
	// ErrTimeout means no card was seen within the probe window.
	ErrTimeout = errors.New("no card within probe window")

	// ErrReadFailure means a card answered but the identifier transaction failed.
	ErrReadFailure = errors.New("card read failed")

	// ErrNoReader means no reader hardware could be found or opened.
	ErrNoReader = errors.New("no reader found")
)

// UID is a card serial number.
type UID []byte

// ParseUID decodes a hex string (case-insensitive, spaces and colons ignored).
func ParseUID(s string) (UID, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty uid")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse uid %q: %w", s, err)
	}
	return UID(b), nil
}

// String renders the UID as uppercase hex without separators.
func (u UID) String() string {
	return strings.ToUpper(hex.EncodeToString(u))
}

// Equal reports whether both UIDs hold the same bytes.
func (u UID) Equal(o UID) bool {
	return bytes.Equal(u, o)
}

// Transceiver is the interface for all card reader implementations.
type Transceiver interface {
	// Probe blocks up to timeout waiting for a card to be present.
	// Returns ErrTimeout if none shows up, or ctx.Err() if cancelled.
	Probe(ctx context.Context, timeout time.Duration) (Presence, error)

	// Close releases any resources held by the reader.
	Close() error
}

// Presence is a card currently reachable by the reader.
type Presence interface {
	// Connect opens an exclusive session with the card. The session must
	// be released before the next probe.
	Connect() (Session, error)
}

// Session is one connection to a present card.
type Session interface {
	// Transmit sends a command and returns the payload and status word.
	Transmit(cmd []byte) ([]byte, uint16, error)

	// Release ends the session.
	Release() error
}

// Config holds common configuration for reader implementations.
type Config struct {
	Type   string `yaml:"type"`   // "pcsc", "serial", "wiegand", "keyboard", "sim"
	Device string `yaml:"device"` // PC/SC reader name, or e.g. "/dev/ttyUSB0", "/dev/input/event0"
	Baud   int    `yaml:"baud"`   // baud rate for serial devices
	Format string `yaml:"format"` // keyboard line format, e.g. "8h", "10d"
}

// New creates a Transceiver based on the provided configuration.
func New(cfg Config) (Transceiver, error) {
	switch cfg.Type {
	case "", "pcsc":
		return NewPCSC(cfg.Device)
	case "serial":
		return NewSerial(cfg.Device, cfg.Baud)
	case "wiegand":
		return NewWiegand(cfg.Device, cfg.Baud)
	case "keyboard", "10h-kbd":
		return NewKeyboard(cfg.Device, cfg.Format)
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown reader type %q", cfg.Type)
	}
}

// framePresence is a card seen by a reader that pushes complete frames
// (serial modules, keyboard wedges, the simulator). The frame has already
// been received, so sessions just replay it.
type framePresence struct {
	uid    UID
	status uint16
}

func (p *framePresence) Connect() (Session, error) {
	return &frameSession{p: p}, nil
}

type frameSession struct {
	p        *framePresence
	released bool
}

func (s *frameSession) Transmit(cmd []byte) ([]byte, uint16, error) {
	if s.released {
		return nil, 0, fmt.Errorf("transmit on released session")
	}
	if !bytes.Equal(cmd, GetUIDCommand) {
		return nil, 0x6D00, nil
	}
	if s.p.status != StatusSuccess {
		return nil, s.p.status, nil
	}
	return append([]byte(nil), s.p.uid...), StatusSuccess, nil
}

func (s *frameSession) Release() error {
	s.released = true
	return nil
}
