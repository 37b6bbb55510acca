package reconcile

import "fmt"

// Policy decides when a manual entry reaches the local store.
type Policy string

const (
	// Confirmed appends only after the backend accepted the entry, so the
	// store mirrors confirmed remote state.
	Confirmed Policy = "confirmed"
	// Optimistic appends before the backend call and keeps the row even if
	// the call fails.
	Optimistic Policy = "optimistic"
)

// ParsePolicy accepts "confirmed" or "optimistic". The empty string means Confirmed.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Confirmed:
		return Confirmed, nil
	case Optimistic:
		return Optimistic, nil
	}
	return "", fmt.Errorf("unknown manual entry policy %q (want %q or %q)", s, Confirmed, Optimistic)
}
