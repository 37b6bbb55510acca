package selection

import (
	"sort"

	"github.com/cleared-dev/picker/internal/model"
)

// Tracker records which transaction IDs the user has marked. Membership is
// keyed by ID, so it survives any change to what is currently displayed.
type Tracker struct {
	ids map[int]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[int]struct{})}
}

// Toggle flips id's membership and reports whether it is now selected.
func (t *Tracker) Toggle(id int) bool {
	if _, ok := t.ids[id]; ok {
		delete(t.ids, id)
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// IsSelected reports whether id is marked.
func (t *Tracker) IsSelected(id int) bool {
	_, ok := t.ids[id]
	return ok
}

// SelectedWithin returns the transactions of view that are marked, in view
// order. IDs marked but absent from view are never returned.
func (t *Tracker) SelectedWithin(view []model.Transaction) []model.Transaction {
	var out []model.Transaction
	for _, txn := range view {
		if t.IsSelected(txn.ID) {
			out = append(out, txn)
		}
	}
	return out
}

// IDs returns every marked ID in ascending order.
func (t *Tracker) IDs() []int {
	out := make([]int, 0, len(t.ids))
	for id := range t.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of marked IDs.
func (t *Tracker) Len() int {
	return len(t.ids)
}

// Clear unmarks everything.
func (t *Tracker) Clear() {
	t.ids = make(map[int]struct{})
}
