// Package events publishes dwell outcomes to message brokers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"tapflow/dwell"
	"tapflow/workflow"
)

// Event is the record published for every resolved dwell.
type Event struct {
	Dwell   string    `json:"dwell"`
	UID     string    `json:"uid"`
	Outcome string    `json:"outcome"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Ticket  int       `json:"ticket,omitempty"`
	Card    int       `json:"card,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// FromOutcome builds the event for a resolved dwell.
func FromOutcome(d dwell.Dwell, o workflow.Outcome, at time.Time) Event {
	e := Event{
		Dwell:   d.ID,
		UID:     d.UID.String(),
		Outcome: o.Kind.String(),
		From:    string(o.From),
		To:      string(o.To),
		Ticket:  o.TicketID,
		Card:    o.CardID,
		At:      at.UTC(),
	}
	switch {
	case o.Err != nil:
		e.Error = o.Err.Error()
	case o.Reason != "":
		e.Error = o.Reason
	}
	return e
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Noop drops every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(ctx context.Context, e Event) error { return nil }

// Close implements Publisher.
func (Noop) Close() {}
