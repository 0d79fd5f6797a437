package store

import (
	"encoding/json"
	"errors"
	"io/fs"

	log "github.com/sirupsen/logrus"
)

// Column is one stage of the ticket pipeline.
type Column string

const (
	Todo  Column = "todo"
	Doing Column = "doing"
	Done  Column = "done"
)

// Columns lists the pipeline in order. Lookups scan in this order.
var Columns = []Column{Todo, Doing, Done}

// Next returns the column a ticket moves to from c. Done has no next column.
func (c Column) Next() (Column, bool) {
	switch c {
	case Todo:
		return Doing, true
	case Doing:
		return Done, true
	default:
		return "", false
	}
}

// Ticket is a board entry. Only the id is interpreted.
type Ticket struct {
	ID  int
	Raw json.RawMessage
}

// Board holds the tickets of every column.
type Board map[Column][]Ticket

// Find returns the first column holding id, scanning todo, doing, done.
func (b Board) Find(id int) (Column, bool) {
	for _, col := range Columns {
		for _, t := range b[col] {
			if t.ID == id {
				return col, true
			}
		}
	}
	return "", false
}

// TicketStore reads the board file written by the backend,
// {"todo": [...], "doing": [...], "done": [...]}. It is never written here.
type TicketStore struct {
	path string
}

// NewTicketStore returns a store backed by path.
func NewTicketStore(path string) *TicketStore {
	return &TicketStore{path: path}
}

// Load reads the board. A missing or corrupt file reads as an empty board;
// entries without a usable id are skipped.
func (s *TicketStore) Load() Board {
	board := Board{}
	for _, col := range Columns {
		board[col] = nil
	}

	var f map[string]json.RawMessage
	if err := readJSON(s.path, &f); err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, errEmpty) {
			log.Warnf("Ticket file %s unreadable, treating as empty: %v", s.path, err)
		}
		return board
	}

	for _, col := range Columns {
		var entries []json.RawMessage
		if err := json.Unmarshal(f[string(col)], &entries); err != nil {
			continue
		}
		for _, raw := range entries {
			id, ok := entryID(raw)
			if !ok {
				continue
			}
			board[col] = append(board[col], Ticket{ID: id, Raw: raw})
		}
	}
	return board
}

// Column returns the column currently holding ticket id.
func (s *TicketStore) Column(id int) (Column, bool) {
	return s.Load().Find(id)
}
