package ledger

import (
	"fmt"

	"github.com/cleared-dev/picker/internal/id"
	"github.com/cleared-dev/picker/internal/model"
)

// Store holds the session's authoritative transactions in insertion order.
type Store struct {
	txns []model.Transaction
	byID map[int]int // id -> index into txns
	seq  id.Sequence
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[int]int)}
}

// Append assigns the next ID to t, appends it and returns the ID.
func (s *Store) Append(t model.Transaction) int {
	t.ID = s.Reserve()
	s.insert(t)
	return t.ID
}

// Reserve claims an ID for a transaction that will be added later with Add.
// A reserved ID is never handed out again, even if it is never used.
func (s *Store) Reserve() int {
	return s.seq.Next()
}

// Add appends a transaction that already carries its ID.
func (s *Store) Add(t model.Transaction) error {
	if t.ID <= 0 {
		return fmt.Errorf("transaction has no id")
	}
	if _, ok := s.byID[t.ID]; ok {
		return fmt.Errorf("duplicate transaction id %d", t.ID)
	}
	s.seq.Observe(t.ID)
	s.insert(t)
	return nil
}

// ReplaceAll discards the current contents, and every ID they held, in favor
// of txns. Positive unique IDs are kept; missing or repeated IDs are
// reassigned after the largest kept ID.
func (s *Store) ReplaceAll(txns []model.Transaction) {
	s.txns = make([]model.Transaction, 0, len(txns))
	s.byID = make(map[int]int, len(txns))
	s.seq.Reset()

	seen := make(map[int]bool, len(txns))
	for _, t := range txns {
		if t.ID > 0 && !seen[t.ID] {
			seen[t.ID] = true
			s.seq.Observe(t.ID)
		}
	}

	kept := make(map[int]bool, len(seen))
	for _, t := range txns {
		if t.ID <= 0 || kept[t.ID] {
			t.ID = s.seq.Next()
		}
		kept[t.ID] = true
		s.insert(t)
	}
}

// All returns a copy of the stored transactions in insertion order.
func (s *Store) All() []model.Transaction {
	out := make([]model.Transaction, len(s.txns))
	copy(out, s.txns)
	return out
}

// Get returns the transaction with the given ID.
func (s *Store) Get(id int) (model.Transaction, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Transaction{}, false
	}
	return s.txns[i], true
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	return len(s.txns)
}

func (s *Store) insert(t model.Transaction) {
	s.byID[t.ID] = len(s.txns)
	s.txns = append(s.txns, t)
}
