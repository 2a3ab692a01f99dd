// Package command defines the bet instruction handed to a sportsbook page and
// the single-slot store that guards its lifetime. A stored command is only
// consumable while it is fresh and was stamped by the agent itself; anything
// else found in the slot is stale and gets discarded without side effects.
package command

import (
	"sync"
	"time"
)

// TTL is how long a stored command stays consumable after it was stamped.
const TTL = 60 * time.Second

// Command is a single bet instruction.
type Command struct {
	League  string  `json:"league,omitempty"`
	Game    string  `json:"game"`
	BetType string  `json:"bet_type"`
	Line    string  `json:"line,omitempty"`
	Odds    int     `json:"odds"`
	Wager   float64 `json:"wager"`

	// Stamped by the store on Put, never supplied by callers.
	CreatedAt time.Time `json:"created_at"`
	Origin    bool      `json:"origin"`
}

// Fresh reports whether the command may still be consumed at time now.
func (c Command) Fresh(now time.Time) bool {
	return c.Origin && now.Sub(c.CreatedAt) < TTL
}

// Store holds at most one pending command per tab. Last write wins.
type Store struct {
	mu    sync.Mutex
	slots map[string]Command
	now   func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock builds a store with an injectable time source.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{slots: make(map[string]Command), now: now}
}

// Put stamps the command with the current time and the origin marker and
// overwrites whatever the slot held before.
func (s *Store) Put(tabID string, cmd Command) Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd.CreatedAt = s.now()
	cmd.Origin = true
	s.slots[tabID] = cmd
	return cmd
}

// Peek returns the slot contents without consuming them. A stale entry is
// deleted on sight and reported as absent.
func (s *Store) Peek(tabID string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.slots[tabID]
	if !ok {
		return Command{}, false
	}
	if !cmd.Fresh(s.now()) {
		delete(s.slots, tabID)
		return Command{}, false
	}
	return cmd, true
}

// Take consumes the slot. Like Peek it refuses and clears stale entries.
func (s *Store) Take(tabID string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.slots[tabID]
	if !ok {
		return Command{}, false
	}
	delete(s.slots, tabID)
	if !cmd.Fresh(s.now()) {
		return Command{}, false
	}
	return cmd, true
}

// Delete clears the slot unconditionally.
func (s *Store) Delete(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, tabID)
}
