// Package audit keeps an append-only journal of dwell outcomes.
package audit

import (
	"context"
	"fmt"

	"tapflow/events"
)

// Config selects the journal backend. An empty Type disables auditing.
type Config struct {
	Type string `yaml:"type"` // "", "file" or "sqlite"
	Path string `yaml:"path"`
}

// Journal persists dwell outcomes.
type Journal interface {
	Record(ctx context.Context, e events.Event) error
	Close() error
}

// Open creates the journal selected by cfg.
func Open(cfg Config) (Journal, error) {
	switch cfg.Type {
	case "", "none":
		return Noop{}, nil
	case "file":
		return OpenFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit type %q", cfg.Type)
	}
}

// Noop discards records.
type Noop struct{}

// Record implements Journal.
func (Noop) Record(ctx context.Context, e events.Event) error { return nil }

// Close implements Journal.
func (Noop) Close() error { return nil }
