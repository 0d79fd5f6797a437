package indicator

import "fmt"

// Indicator is the interface for operator feedback implementations
// (speaker, LEDs, buzzer, neopixels).
type Indicator interface {
	// Idle sets the indicator to idle/ready state.
	Idle()

	// Processing shows that a card was read and is being handled.
	Processing()

	// Cue plays the feedback for a dwell outcome.
	Cue(c Cue)

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// Speaker cues (enabled unless Sound.Disabled)
	Sound SoundConfig `yaml:"sound"`

	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`

	// Piezo buzzer on a gpiochip line (nil pin = not configured)
	Buzzer BuzzerConfig `yaml:"buzzer"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if more than one output is configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if !cfg.Sound.Disabled {
		snd, err := NewSound(cfg.Sound)
		if err != nil {
			return nil, fmt.Errorf("sound: %w", err)
		}
		indicators = append(indicators, snd)
	}

	// Add GPIO indicator if any pins configured
	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.Buzzer.Pin != nil {
		buz, err := NewBuzzer(cfg.Buzzer)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, buz)
	}

	// Add Neopixel indicator if pipe configured
	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
