//go:build !linux

package indicator

import "errors"

// NewBuzzer fails: GPIO character devices only exist on Linux.
func NewBuzzer(cfg BuzzerConfig) (*Buzzer, error) {
	if cfg.Pin == nil {
		return nil, errNoBuzzerPin
	}
	return nil, errors.New("buzzer needs linux gpiochip support")
}
