// Package workflow decides what a card dwell does: register the card or
// move its ticket one column forward.
package workflow

import (
	"context"
	"fmt"

	"tapflow/reader"
	"tapflow/store"
)

// Mode selects what an unknown or known card means.
type Mode string

const (
	// ModeRegister enrolls unknown cards and does nothing for known ones.
	ModeRegister Mode = "register"
	// ModeTicket advances the ticket whose id matches the card id.
	ModeTicket Mode = "ticket"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRegister, ModeTicket:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeRegister, ModeTicket)
	}
}

// Transition is the remote action requested for a ticket.
type Transition string

const (
	Start    Transition = "start"    // todo -> doing
	Complete Transition = "complete" // doing -> done
)

// transitionFrom maps the current column to the call that leaves it.
func transitionFrom(col store.Column) (Transition, bool) {
	switch col {
	case store.Todo:
		return Start, true
	case store.Doing:
		return Complete, true
	default:
		return "", false
	}
}

// Cards is the card registry as the resolver needs it.
type Cards interface {
	Lookup(uid string) (store.Card, bool)
	Register(uid string) (store.Card, bool, error)
}

// Tickets locates a ticket on the board.
type Tickets interface {
	Column(id int) (store.Column, bool)
}

// Executor performs a ticket transition remotely.
type Executor interface {
	Transition(ctx context.Context, ticketID int, t Transition) error
}

// Resolver maps a card to exactly one outcome.
type Resolver struct {
	mode    Mode
	cards   Cards
	tickets Tickets
	exec    Executor
}

// NewResolver creates a resolver. tickets and exec are only used in ModeTicket.
func NewResolver(mode Mode, cards Cards, tickets Tickets, exec Executor) (*Resolver, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if cards == nil {
		return nil, fmt.Errorf("card registry required")
	}
	if mode == ModeTicket && (tickets == nil || exec == nil) {
		return nil, fmt.Errorf("ticket mode needs a ticket store and an executor")
	}
	return &Resolver{mode: mode, cards: cards, tickets: tickets, exec: exec}, nil
}

// Mode returns the configured mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve decides and performs the action for one dwell. The stores are
// re-read on every call; the executor is called at most once and never retried.
func (r *Resolver) Resolve(ctx context.Context, uid reader.UID) Outcome {
	key := uid.String()

	if r.mode == ModeRegister {
		card, created, err := r.cards.Register(key)
		if err != nil {
			return Outcome{Kind: Rejected, Reason: ReasonRegistryWrite, Err: err}
		}
		if !created {
			return Outcome{Kind: NoAction, CardID: card.ID}
		}
		return Outcome{Kind: RegisterNew, CardID: card.ID}
	}

	card, ok := r.cards.Lookup(key)
	if !ok {
		return Outcome{Kind: Rejected, Reason: ReasonUnmapped}
	}

	out := Outcome{CardID: card.ID, TicketID: card.ID}
	col, ok := r.tickets.Column(card.ID)
	if !ok {
		out.Kind = Rejected
		out.Reason = ReasonTicketNotFound
		return out
	}

	t, ok := transitionFrom(col)
	if !ok {
		out.Kind = NoAction
		out.From = col
		return out
	}

	next, _ := col.Next()
	out.Kind = WorkflowAdvance
	out.From, out.To = col, next
	out.Transition = t
	if err := r.exec.Transition(ctx, card.ID, t); err != nil {
		out.Err = fmt.Errorf("%s ticket %d: %w", t, card.ID, err)
	}
	return out
}
