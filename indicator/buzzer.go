package indicator

import (
	"errors"
	"time"
)

var errNoBuzzerPin = errors.New("buzzer pin not configured")

// BuzzerConfig holds the gpiochip line driving a piezo buzzer.
type BuzzerConfig struct {
	Chip string `yaml:"chip"` // default "gpiochip0"
	Pin  *int   `yaml:"pin"`
}

// line is the part of a GPIO output line the buzzer uses.
type line interface {
	SetValue(int) error
	Close() error
}

// Beep patterns as alternating on/off durations.
var buzzPatterns = map[Cue][]time.Duration{
	CueStart:      {80 * time.Millisecond},
	CueComplete:   {80 * time.Millisecond, 80 * time.Millisecond, 80 * time.Millisecond},
	CueRegistered: {250 * time.Millisecond},
	CueFailure: {
		60 * time.Millisecond, 60 * time.Millisecond,
		60 * time.Millisecond, 60 * time.Millisecond,
		60 * time.Millisecond,
	},
}

// Buzzer implements Indicator with a piezo buzzer on a GPIO line.
type Buzzer struct {
	line  line
	sleep func(time.Duration)
}

// Idle implements Indicator.Idle.
func (b *Buzzer) Idle() {
	b.line.SetValue(0)
}

// Processing implements Indicator.Processing.
func (b *Buzzer) Processing() {}

// Cue implements Indicator.Cue.
func (b *Buzzer) Cue(c Cue) {
	for i, d := range buzzPatterns[c] {
		b.line.SetValue(1 - i%2)
		b.sleep(d)
	}
	b.line.SetValue(0)
}

// Shutdown implements Indicator.Shutdown.
func (b *Buzzer) Shutdown() {
	b.line.SetValue(0)
}

// Release implements Indicator.Release.
func (b *Buzzer) Release() error {
	b.line.SetValue(0)
	return b.line.Close()
}
