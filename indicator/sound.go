package indicator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// SoundConfig configures speaker cues.
type SoundConfig struct {
	Disabled bool           `yaml:"disabled"`
	Player   string         `yaml:"player"` // default "aplay"
	Dir      string         `yaml:"dir"`    // where missing cue files are generated
	Files    map[Cue]string `yaml:"files"`  // cue -> wav file
}

type tone struct {
	freq float64 // Hz
	ms   int
}

// Beeps generated when a cue file is missing.
var tones = map[Cue]tone{
	CueStart:      {freq: 880, ms: 180},
	CueComplete:   {freq: 1320, ms: 180},
	CueRegistered: {freq: 660, ms: 250},
	CueFailure:    {freq: 220, ms: 400},
}

const (
	sampleRate = 44100
	volume     = 0.35
)

// Sound plays cue wav files through an external player. Missing files are
// generated as plain beeps; a missing player degrades to the terminal bell.
type Sound struct {
	player   string
	files    map[Cue]string
	run      func(name string, args ...string) error
	bell     io.Writer
	noPlayer bool
}

// NewSound creates a speaker indicator.
func NewSound(cfg SoundConfig) (*Sound, error) {
	player := cfg.Player
	if player == "" {
		player = "aplay"
	}
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tapflow-sounds")
	}

	files := make(map[Cue]string, len(Cues))
	for _, c := range Cues {
		if f, ok := cfg.Files[c]; ok && f != "" {
			files[c] = f
			continue
		}
		files[c] = filepath.Join(dir, string(c)+".wav")
	}
	for c := range cfg.Files {
		if _, ok := tones[c]; !ok {
			return nil, fmt.Errorf("unknown cue %q", c)
		}
	}

	return &Sound{
		player: player,
		files:  files,
		run:    runQuiet,
		bell:   os.Stdout,
	}, nil
}

func runQuiet(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Idle implements Indicator.Idle.
func (s *Sound) Idle() {}

// Processing implements Indicator.Processing.
func (s *Sound) Processing() {}

// Cue implements Indicator.Cue. Playback blocks until the clip ends.
func (s *Sound) Cue(c Cue) {
	path, ok := s.files[c]
	if !ok {
		return
	}
	if s.noPlayer {
		s.ring()
		return
	}

	if err := ensureWav(path, tones[c]); err != nil {
		log.Debugf("Generate %s: %v", path, err)
	}

	err := s.run(s.player, "-q", path)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		log.Warnf("%s not found, falling back to terminal bell", s.player)
		s.noPlayer = true
		s.ring()
	case err != nil:
		log.Debugf("Play %s: %v", path, err)
	}
}

func (s *Sound) ring() {
	fmt.Fprint(s.bell, "\a")
}

// Shutdown implements Indicator.Shutdown.
func (s *Sound) Shutdown() {}

// Release implements Indicator.Release.
func (s *Sound) Release() error {
	return nil
}

// ensureWav writes a beep to path unless the file already exists.
func ensureWav(path string, t tone) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeBeep(&buf, t); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// wavHeader is the canonical 44 byte PCM header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// writeBeep writes a mono 16 bit sine wave.
func writeBeep(w io.Writer, t tone) error {
	n := sampleRate * t.ms / 1000
	dataLen := uint32(n * 2)

	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLen,
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}

	samples := make([]int16, n)
	for i := range samples {
		v := volume * math.Sin(2*math.Pi*t.freq*float64(i)/sampleRate)
		samples[i] = int16(math.Max(-1, math.Min(1, v)) * 32767)
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
