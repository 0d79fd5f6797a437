package reader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tarm/serial"
)

const (
	stx = 0x02
	etx = 0x03

	// Longest ASCII body we accept between STX and ETX.
	maxWiegandBody = 16
)

// Wiegand implements Transceiver for Wiegand-to-serial bridges that send
// each read as ASCII hex between STX and ETX.
type Wiegand struct {
	port *serial.Port
	body strings.Builder
	open bool // inside an STX..ETX frame
}

// NewWiegand creates a new Wiegand reader on the specified serial port.
func NewWiegand(device string, baud int) (*Wiegand, error) {
	if baud == 0 {
		baud = 9600
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 50 * time.Millisecond,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w: %w", device, ErrNoReader, err)
	}
	return &Wiegand{port: p}, nil
}

// Probe implements Transceiver.Probe.
func (w *Wiegand) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		n, err := w.port.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		if p := w.feed(buf[0]); p != nil {
			return p, nil
		}
	}
}

// feed consumes one byte and returns a presence when it completes a frame.
func (w *Wiegand) feed(c byte) *framePresence {
	switch {
	case c == stx:
		w.body.Reset()
		w.open = true
		return nil
	case !w.open:
		return nil
	case c == etx:
		w.open = false
		return decodeWiegand(w.body.String())
	case w.body.Len() >= maxWiegandBody:
		// Runaway frame, resync on the next STX
		w.open = false
		return nil
	default:
		w.body.WriteByte(c)
		return nil
	}
}

// decodeWiegand checks the trailing XOR byte of a 10 digit frame
// (4 id bytes + checksum) and keeps the low 24 bits as the card number.
func decodeWiegand(id string) *framePresence {
	for len(id) < 10 {
		id = "0" + id
	}
	raw, err := ParseUID(id[:10])
	if err != nil {
		return &framePresence{status: statusMalformed}
	}

	var checksum byte
	for _, b := range raw[:4] {
		checksum ^= b
	}
	if checksum != raw[4] {
		return &framePresence{uid: raw[1:4], status: statusChecksum}
	}
	return &framePresence{uid: raw[1:4], status: StatusSuccess}
}

// Close implements Transceiver.Close.
func (w *Wiegand) Close() error {
	if w.port == nil {
		return nil
	}
	return w.port.Close()
}
