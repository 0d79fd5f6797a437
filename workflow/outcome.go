package workflow

import (
	"fmt"

	"tapflow/store"
)

// Kind is the action decided for one dwell.
type Kind int

const (
	NoAction Kind = iota
	RegisterNew
	WorkflowAdvance
	Rejected
)

func (k Kind) String() string {
	switch k {
	case NoAction:
		return "no_action"
	case RegisterNew:
		return "register_new"
	case WorkflowAdvance:
		return "workflow_advance"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reasons carried by Rejected outcomes.
const (
	ReasonUnmapped       = "unmapped"
	ReasonTicketNotFound = "ticket not found"
	ReasonRegistryWrite  = "registry write failed"
)

// Outcome is the single result of resolving one dwell.
type Outcome struct {
	Kind Kind

	From, To   store.Column // WorkflowAdvance only
	Transition Transition   // WorkflowAdvance only
	Reason     string       // Rejected only

	CardID   int
	TicketID int

	// Err is set when the side effect was attempted and failed. The dwell
	// is consumed either way.
	Err error
}

// Succeeded reports whether the outcome completed a side effect.
func (o Outcome) Succeeded() bool {
	return (o.Kind == RegisterNew || o.Kind == WorkflowAdvance) && o.Err == nil
}

func (o Outcome) String() string {
	var s string
	switch o.Kind {
	case WorkflowAdvance:
		s = fmt.Sprintf("%s(%s, %s)", o.Kind, o.From, o.To)
	case Rejected:
		s = fmt.Sprintf("%s(%q)", o.Kind, o.Reason)
	default:
		s = o.Kind.String()
	}
	if o.Err != nil {
		s += ": " + o.Err.Error()
	}
	return s
}
