package dwell

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tapflow/reader"
)

// Dwell is one physical presentation of a card.
type Dwell struct {
	ID      string
	UID     reader.UID
	Started time.Time
}

// Handler acts on a new dwell. It runs on the loop goroutine, so the next
// read starts only after it returns.
type Handler interface {
	HandleDwell(ctx context.Context, d Dwell)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Dwell)

// HandleDwell implements Handler.
func (f HandlerFunc) HandleDwell(ctx context.Context, d Dwell) {
	f(ctx, d)
}

// Loop is the single polling loop: read, deduplicate, act, wait for removal.
type Loop struct {
	reader  *Reader
	tracker *Tracker
	handler Handler

	// OnRemoved, if set, is called after each confirmed removal.
	OnRemoved func(uid reader.UID)
}

// NewLoop wires a reader, tracker and handler together.
func NewLoop(r *Reader, t *Tracker, h Handler) *Loop {
	return &Loop{reader: r, tracker: t, handler: h}
}

// Run polls until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		uid, ok := l.reader.ReadStable(ctx)
		if !ok {
			continue
		}

		if l.tracker.Observe(uid) {
			d := Dwell{ID: uuid.NewString(), UID: uid, Started: time.Now()}
			log.WithFields(log.Fields{"dwell": d.ID, "uid": uid.String()}).Debug("Dwell started")
			l.handler.HandleDwell(ctx, d)
		} else {
			log.Debugf("Card %s still on the reader, ignoring", uid)
		}

		// Always wait for the card to go, or the same card retriggers.
		if l.reader.AwaitRemoval(ctx) {
			l.tracker.Removed()
			log.Debugf("Card %s removed", uid)
			if l.OnRemoved != nil {
				l.OnRemoved(uid)
			}
		}
	}
	return ctx.Err()
}
