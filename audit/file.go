package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tapflow/events"
)

// File appends one JSON object per line.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &File{f: f}, nil
}

// Record implements Journal.
func (j *File) Record(ctx context.Context, e events.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close implements Journal.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
