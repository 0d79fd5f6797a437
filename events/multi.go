package events

import (
	"context"
	"errors"
)

// Multi fans an event out to several publishers. Every publisher is tried
// even when an earlier one fails.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() {
	for _, p := range m {
		p.Close()
	}
}
