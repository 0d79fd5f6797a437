package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Card maps a card serial number to a numeric id. ID is 0 when the stored
// id is not a whole number.
type Card struct {
	ID  int    `json:"id"`
	UID string `json:"uid"`
}

// cardFile keeps every entry raw so that fields and entries this program
// does not understand survive a rewrite.
type cardFile struct {
	Cards []json.RawMessage `json:"cards"`
}

// Registry is the card registry file, {"cards": [{"id": 1, "uid": "04A1.."}]}.
// A missing, empty or corrupt file reads as an empty registry.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry returns a registry backed by path. The file is created on
// the first registration.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the backing file.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) load() (cardFile, []Card) {
	var f cardFile
	if err := readJSON(r.path, &f); err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, errEmpty) {
			log.Warnf("Card registry %s unreadable, treating as empty: %v", r.path, err)
		}
		return cardFile{}, nil
	}

	cards := make([]Card, 0, len(f.Cards))
	for _, raw := range f.Cards {
		var entry struct {
			UID string `json:"uid"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil || entry.UID == "" {
			continue
		}
		// An entry whose id cannot be read still owns its uid.
		id, _ := entryID(raw)
		cards = append(cards, Card{ID: id, UID: entry.UID})
	}
	return f, cards
}

// Cards returns every entry that has a uid.
func (r *Registry) Cards() []Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, cards := r.load()
	return cards
}

// Lookup finds a card by uid. Hex case is ignored.
func (r *Registry) Lookup(uid string) (Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, cards := r.load()
	return lookup(cards, uid)
}

func lookup(cards []Card, uid string) (Card, bool) {
	for _, c := range cards {
		if strings.EqualFold(c.UID, uid) {
			return c, true
		}
	}
	return Card{}, false
}

// NextID returns the id the next registration would get.
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, cards := r.load()
	return NextID(cards)
}

// NextID returns max(id)+1, or 1 when there are no cards.
func NextID(cards []Card) int {
	highest := 0
	for _, c := range cards {
		if c.ID > highest {
			highest = c.ID
		}
	}
	return highest + 1
}

// Register adds uid with the next free id. If uid is already registered the
// existing card is returned with created=false and the file is not touched.
func (r *Registry) Register(uid string) (card Card, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, cards := r.load()
	if c, ok := lookup(cards, uid); ok {
		return c, false, nil
	}

	card = Card{ID: NextID(cards), UID: strings.ToUpper(uid)}
	raw, err := json.Marshal(card)
	if err != nil {
		return Card{}, false, fmt.Errorf("encode card: %w", err)
	}
	f.Cards = append(f.Cards, raw)

	if err := writeJSONAtomic(r.path, f); err != nil {
		return Card{}, false, fmt.Errorf("save card registry: %w", err)
	}
	return card, true, nil
}
