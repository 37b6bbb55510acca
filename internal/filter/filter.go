package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/cleared-dev/picker/internal/model"
)

// ErrEmptyDataset is returned when filters are applied with no transactions loaded.
var ErrEmptyDataset = errors.New("no transactions to filter")

// DatePolicy decides what happens to a transaction whose date cannot be
// parsed while a date bound is active.
type DatePolicy string

const (
	// SkipUnparseable excludes the transaction from every date-bounded
	// result and reports it in Result.Skipped.
	SkipUnparseable DatePolicy = "skip"
	// FailFast aborts the pass with a *DateParseError.
	FailFast DatePolicy = "fail"
)

// ParseDatePolicy accepts "skip" or "fail". The empty string means SkipUnparseable.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(s) {
	case "", SkipUnparseable:
		return SkipUnparseable, nil
	case FailFast:
		return FailFast, nil
	}
	return "", fmt.Errorf("unknown date policy %q (want %q or %q)", s, SkipUnparseable, FailFast)
}

// DateParseError reports a stored transaction whose date is unreadable.
type DateParseError struct {
	ID   int
	Date string
	Err  error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("transaction %d: unreadable date %q: %v", e.ID, e.Date, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// Criteria narrows a transaction list. Nil bounds and an empty Type impose
// no constraint. Bounds are inclusive calendar dates.
type Criteria struct {
	Start *time.Time
	End   *time.Time
	Type  model.CreditDebit
}

// NewCriteria builds Criteria, truncating bounds to calendar dates.
func NewCriteria(start, end *time.Time, typ model.CreditDebit) Criteria {
	c := Criteria{Type: typ}
	if start != nil {
		d := model.CivilDate(*start)
		c.Start = &d
	}
	if end != nil {
		d := model.CivilDate(*end)
		c.End = &d
	}
	return c
}

// Validate rejects an inverted date range and unknown types.
func (c Criteria) Validate() error {
	if c.Type != "" && !c.Type.Valid() {
		return fmt.Errorf("unknown type filter %q", c.Type)
	}
	if c.Start != nil && c.End != nil && model.CivilDate(*c.Start).After(model.CivilDate(*c.End)) {
		return fmt.Errorf("start date %s is after end date %s",
			model.FormatDate(*c.Start), model.FormatDate(*c.End))
	}
	return nil
}

// IsZero reports whether c imposes no constraint at all.
func (c Criteria) IsZero() bool {
	return c.Start == nil && c.End == nil && c.Type == ""
}

func (c Criteria) hasDateBound() bool {
	return c.Start != nil || c.End != nil
}

// Result is the outcome of Apply.
type Result struct {
	Transactions []model.Transaction
	Skipped      []int // IDs dropped for unreadable dates
}

// Apply returns the transactions satisfying every active predicate, in their
// original order. It always works from the full txns slice.
func Apply(txns []model.Transaction, c Criteria, policy DatePolicy) (Result, error) {
	if len(txns) == 0 {
		return Result{}, ErrEmptyDataset
	}

	var start, end time.Time
	if c.Start != nil {
		start = model.CivilDate(*c.Start)
	}
	if c.End != nil {
		end = model.CivilDate(*c.End)
	}

	res := Result{Transactions: make([]model.Transaction, 0, len(txns))}
	for _, t := range txns {
		if c.hasDateBound() {
			date, err := model.ParseDate(t.Date)
			if err != nil {
				if policy == FailFast {
					return Result{}, &DateParseError{ID: t.ID, Date: t.Date, Err: err}
				}
				res.Skipped = append(res.Skipped, t.ID)
				continue
			}
			if c.Start != nil && date.Before(start) {
				continue
			}
			if c.End != nil && date.After(end) {
				continue
			}
		}
		if c.Type != "" && t.CreditDebit != c.Type {
			continue
		}
		res.Transactions = append(res.Transactions, t)
	}
	return res, nil
}
