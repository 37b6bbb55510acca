package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/picker/internal/model"
)

// ValidationError describes a rejected field of a manual entry or upload row.
type ValidationError struct {
	Row    int // 1-based upload row; 0 for manual entries
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ManualEntry holds the raw fields of a hand-entered transaction.
type ManualEntry struct {
	Date        string
	Description string
	CreditDebit string
	Amount      string
}

// Validate checks that every field is present and well formed and returns
// the normalized transaction. The returned transaction has no ID.
func (m ManualEntry) Validate() (model.Transaction, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"date", m.Date},
		{"description", m.Description},
		{"creditDebit", m.CreditDebit},
		{"amount", m.Amount},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return model.Transaction{}, &ValidationError{Field: f.name, Reason: "missing"}
		}
	}

	date := strings.TrimSpace(m.Date)
	if _, err := model.ParseDate(date); err != nil {
		return model.Transaction{}, &ValidationError{Field: "date", Reason: "expected day/month/year, got " + quote(date)}
	}

	cd, err := model.ParseCreditDebit(m.CreditDebit)
	if err != nil {
		return model.Transaction{}, &ValidationError{Field: "creditDebit", Reason: err.Error()}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(m.Amount))
	if err != nil {
		return model.Transaction{}, &ValidationError{Field: "amount", Reason: "not a number: " + quote(m.Amount)}
	}

	return model.Transaction{
		Date:        date,
		Description: strings.TrimSpace(m.Description),
		CreditDebit: cd,
		Amount:      amount,
	}, nil
}

// NormalizeBatch maps every uploaded row's credit/debit flag onto the closed
// enum. One unrecognized flag rejects the whole batch. Dates are passed
// through untouched; the filter decides what an unreadable date means.
func NormalizeBatch(txns []model.Transaction) ([]model.Transaction, error) {
	out := make([]model.Transaction, len(txns))
	for i, t := range txns {
		cd, err := model.ParseCreditDebit(string(t.CreditDebit))
		if err != nil {
			return nil, &ValidationError{Row: i + 1, Field: "creditDebit", Reason: err.Error()}
		}
		t.CreditDebit = cd
		out[i] = t
	}
	return out, nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
