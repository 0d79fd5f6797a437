package dwell

import "tapflow/reader"

// State of the Tracker.
type State int

const (
	// Idle means no dwell is being tracked.
	Idle State = iota
	// Active means a dwell for Tracker.Current has been acted upon.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Tracker collapses repeated reads of one card into a single dwell.
// Transitions:
//
//	Idle       --Observe(uid)-->  Active(uid), new dwell
//	Active(a)  --Observe(a)-->    Active(a), nothing
//	Active(a)  --Observe(b)-->    Active(b), new dwell
//	Active(a)  --Removed()-->     Idle (ResetOnRemoval) or Active(a) (ResetOnChange)
type Tracker struct {
	policy ResetPolicy
	state  State
	uid    reader.UID
}

// NewTracker creates an idle tracker.
func NewTracker(policy ResetPolicy) *Tracker {
	if policy == "" {
		policy = ResetOnRemoval
	}
	return &Tracker{policy: policy}
}

// Observe records a stable read and reports whether it starts a new dwell.
func (t *Tracker) Observe(uid reader.UID) bool {
	if t.state == Active && t.uid.Equal(uid) {
		return false
	}
	t.state = Active
	t.uid = append(reader.UID(nil), uid...)
	return true
}

// Removed records a confirmed removal.
func (t *Tracker) Removed() {
	if t.policy == ResetOnRemoval {
		t.state = Idle
		t.uid = nil
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Current returns the card of the active dwell, nil when idle.
func (t *Tracker) Current() reader.UID {
	return t.uid
}
