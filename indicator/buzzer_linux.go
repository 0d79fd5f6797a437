//go:build linux

package indicator

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// NewBuzzer requests the buzzer line as an output, initially silent.
func NewBuzzer(cfg BuzzerConfig) (*Buzzer, error) {
	if cfg.Pin == nil {
		return nil, errNoBuzzerPin
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	l, err := gpiocdev.RequestLine(cfg.Chip, *cfg.Pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request buzzer line %s:%d: %w", cfg.Chip, *cfg.Pin, err)
	}
	return &Buzzer{line: l, sleep: time.Sleep}, nil
}
