package reader

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kenshaw/evdev"
	log "github.com/sirupsen/logrus"
)

// Keyboard implements Transceiver for USB keyboard-wedge readers that type
// the card number followed by Enter once per presentation.
type Keyboard struct {
	device    *evdev.Evdev
	events    <-chan *evdev.EventEnvelope
	cancel    context.CancelFunc
	numDigits int  // expected number of digits (0 = any)
	isHex     bool // true for hex input, false for decimal
	format    string
	buf       strings.Builder
}

// NewKeyboard creates a new keyboard reader on the specified input device.
// Format specifies the input format: "10h" (10 hex digits), "10d" (10 decimal), "8h", etc.
// If format is empty, defaults to "10h".
func NewKeyboard(device string, format string) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w: %w", device, ErrNoReader, err)
	}

	log.Printf("Opened keyboard device: %s", dev.Name())
	log.Printf("Vendor: 0x%04x, Product: 0x%04x", dev.ID().Vendor, dev.ID().Product)

	numDigits, isHex, format := parseKeyboardFormat(format)

	base := "hex"
	if !isHex {
		base = "decimal"
	}
	log.Printf("Keyboard reader format: %s (%d %s digits)", format, numDigits, base)

	ctx, cancel := context.WithCancel(context.Background())
	return &Keyboard{
		device:    dev,
		events:    dev.Poll(ctx),
		cancel:    cancel,
		numDigits: numDigits,
		isHex:     isHex,
		format:    format,
	}, nil
}

func parseKeyboardFormat(format string) (numDigits int, isHex bool, normalized string) {
	if format == "" {
		format = "10h"
	}
	format = strings.ToLower(format)

	switch {
	case strings.HasSuffix(format, "h"):
		numDigits, _ = strconv.Atoi(strings.TrimSuffix(format, "h"))
		return numDigits, true, format
	case strings.HasSuffix(format, "d"):
		numDigits, _ = strconv.Atoi(strings.TrimSuffix(format, "d"))
		return numDigits, false, format
	default:
		// Bare number, assume hex
		numDigits, _ = strconv.Atoi(format)
		return numDigits, true, format
	}
}

// Probe implements Transceiver.Probe. A complete line typed within the
// window is a presence; a garbled line is a presence whose reads fail.
func (k *Keyboard) Probe(ctx context.Context, timeout time.Duration) (Presence, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrTimeout
		case event := <-k.events:
			if event == nil {
				return nil, fmt.Errorf("keyboard device closed")
			}
			if _, ok := event.Type.(evdev.KeyType); !ok || event.Value != 1 {
				continue
			}
			if event.Type != evdev.KeyEnter {
				k.buf.WriteString(evdev.KeyType(event.Code).String())
				continue
			}

			line := k.buf.String()
			k.buf.Reset()
			if line == "" {
				continue
			}
			return k.parseLine(line), nil
		}
	}
}

func (k *Keyboard) parseLine(line string) *framePresence {
	if k.numDigits > 0 && len(line) != k.numDigits {
		log.Debugf("Bad badge: expected %d digits, got %d (%q)", k.numDigits, len(line), line)
		return &framePresence{status: statusMalformed}
	}

	if k.isHex {
		if len(line)%2 == 1 {
			line = "0" + line
		}
		uid, err := ParseUID(line)
		if err != nil {
			log.Debugf("Bad badge line %q: %v", line, err)
			return &framePresence{status: statusMalformed}
		}
		return &framePresence{uid: uid, status: StatusSuccess}
	}

	number, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		log.Debugf("Bad badge line %q (base 10): %v", line, err)
		return &framePresence{status: statusMalformed}
	}
	uid := make(UID, 4)
	binary.BigEndian.PutUint32(uid, uint32(number&0xffffffff))
	return &framePresence{uid: uid, status: StatusSuccess}
}

// Close implements Transceiver.Close.
func (k *Keyboard) Close() error {
	if k.device == nil {
		return nil
	}
	k.cancel()
	return k.device.Close()
}
