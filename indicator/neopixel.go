package indicator

import (
	"fmt"
	"io"
	"os"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoNormalIdle = "@3 !150000 400000"
	neoProcessing = "@2 !30000 404000"
	neoStart      = "@1 !50000 8000"
	neoComplete   = "@1 !50000 0080"
	neoRegistered = "@1 !50000 008000"
	neoFailure    = "@2 !10000 ff"
	neoTerminated = "@0 010101"
)

var neoCues = map[Cue]string{
	CueStart:      neoStart,
	CueComplete:   neoComplete,
	CueRegistered: neoRegistered,
	CueFailure:    neoFailure,
}

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	pipe io.WriteCloser
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.write(neoNormalIdle)
}

// Processing implements Indicator.Processing.
func (n *Neopixel) Processing() {
	n.write(neoProcessing)
}

// Cue implements Indicator.Cue.
func (n *Neopixel) Cue(c Cue) {
	if s, ok := neoCues[c]; ok {
		n.write(s)
	}
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe != nil {
		n.pipe.Write([]byte(s + "\n"))
	}
}
