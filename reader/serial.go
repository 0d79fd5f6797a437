package reader

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

const frameLen = 9

// Serial implements Transceiver for serial RFID modules that repeat a frame
// for as long as a card sits on the antenna.
// Protocol: [0x02][0x09][data...][checksum][0x03]
type Serial struct {
	port   *serial.Port
	device string
}

// NewSerial creates a new serial RFID reader.
func NewSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w: %w", device, ErrNoReader, err)
	}

	return &Serial{port: port, device: device}, nil
}

// Probe implements Transceiver.Probe. Any complete frame counts as presence;
// a frame with a bad checksum yields a presence whose reads fail.
func (s *Serial) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	deadline := time.Now().Add(timeout)
	buff := make([]byte, frameLen)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		n, err := s.port.Read(buff)
		if err != nil || n != frameLen {
			// Timeout or partial read, try again
			continue
		}
		if p := parseFrame(buff); p != nil {
			return p, nil
		}
	}
}

// parseFrame validates framing and checksum. Returns nil when the bytes are
// not a frame at all.
func parseFrame(buff []byte) *framePresence {
	if len(buff) != frameLen {
		return nil
	}

	preambles := []byte{0x02, 0x09}
	terminator := []byte{0x03}

	if !bytes.Equal(buff[0:2], preambles) {
		return nil
	}
	if !bytes.Equal(buff[8:9], terminator) {
		return nil
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}

	uid := UID(append([]byte(nil), data[2:6]...))
	if xor != buff[7] {
		return &framePresence{uid: uid, status: statusChecksum}
	}
	return &framePresence{uid: uid, status: StatusSuccess}
}

// Close implements Transceiver.Close.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
