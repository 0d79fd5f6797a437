package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"tapflow/reader"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/tapflow-events")
}

// Antenna is what pipe commands act on, normally a *reader.Sim.
type Antenna interface {
	Present(uid reader.UID)
	Remove()
	Flaky(n int)
}

// EventPipe listens for simulated card events on a named pipe.
type EventPipe struct {
	path    string
	antenna Antenna

	mu   sync.Mutex
	file *os.File
	done bool
}

// New creates the named pipe. Returns nil if path is empty.
func New(cfg Config, antenna Antenna) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove a stale pipe from an earlier run
	os.Remove(cfg.Path)

	if err := syscall.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	// Opened read-write so the open does not block waiting for a writer and
	// reads do not hit EOF each time a writer goes away.
	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(cfg.Path)
		return nil, fmt.Errorf("open named pipe %s: %w", cfg.Path, err)
	}

	return &EventPipe{path: cfg.Path, antenna: antenna, file: f}, nil
}

// Start reads commands until ctx is cancelled or the pipe is closed.
// This should be called as a goroutine.
func (ep *EventPipe) Start(ctx context.Context) {
	log.Infof("Event pipe listening on %s", ep.path)

	stop := context.AfterFunc(ctx, func() { ep.Close() })
	defer stop()

	ep.serve(ep.file)
}

func (ep *EventPipe) serve(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, err := parseLine(scanner.Text())
		if err != nil {
			log.Warnf("Event pipe: %v", err)
			continue
		}
		cmd.apply(ep.antenna)
	}
	if err := scanner.Err(); err != nil && !ep.closed() {
		log.Warnf("Event pipe read: %v", err)
	}
}

func (ep *EventPipe) closed() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.done
}

// Close stops the listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.done {
		return nil
	}
	ep.done = true
	ep.file.Close()
	return os.Remove(ep.path)
}

type verb int

const (
	verbNone verb = iota
	verbPresent
	verbRemove
	verbFlaky
)

type command struct {
	verb verb
	uid  reader.UID
	n    int
}

func (c command) apply(a Antenna) {
	switch c.verb {
	case verbPresent:
		log.Debugf("Event pipe: present %s", c.uid)
		a.Present(c.uid)
	case verbRemove:
		log.Debug("Event pipe: remove")
		a.Remove()
	case verbFlaky:
		log.Debugf("Event pipe: next %d reads fail", c.n)
		a.Flaky(c.n)
	}
}

// parseLine parses one command line.
// Command format:
//
//	present <uid>   - Place a card (hex, colons or spaces allowed)
//	tag <uid>       - Alias for present
//	remove          - Take the card away
//	flaky <n>       - Fail the next n identifier reads
//
// Blank lines and lines starting with # are ignored.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return command{}, nil
	}

	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "present", "tag":
		if len(parts) < 2 {
			return command{}, fmt.Errorf("%s requires a card uid", cmd)
		}
		uid, err := reader.ParseUID(strings.Join(parts[1:], ""))
		if err != nil {
			return command{}, err
		}
		return command{verb: verbPresent, uid: uid}, nil

	case "remove":
		return command{verb: verbRemove}, nil

	case "flaky":
		if len(parts) < 2 {
			return command{}, fmt.Errorf("flaky requires a count")
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return command{}, fmt.Errorf("invalid flaky count: %s", parts[1])
		}
		return command{verb: verbFlaky, n: n}, nil

	default:
		return command{}, fmt.Errorf("unknown command: %s", cmd)
	}
}
