package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CreditDebit flags which side of the account a transaction hits.
type CreditDebit string

const (
	Credit CreditDebit = "CR"
	Debit  CreditDebit = "DR"
)

// DateLayout is the day/month/year layout statement dates use. Day and month
// may be written with or without a leading zero.
const DateLayout = "2/1/2006"

// Transaction is one row of a statement or a manually entered item.
type Transaction struct {
	ID          int
	Date        string // day/month/year text, as received
	Description string
	CreditDebit CreditDebit
	Amount      decimal.Decimal
}

// Valid reports whether c is one of the known flags.
func (c CreditDebit) Valid() bool {
	return c == Credit || c == Debit
}

// ParseCreditDebit normalizes the vocabularies seen in practice ("CR"/"DR"
// from statements, "Credit"/"Debit" from entry forms) to a CreditDebit.
func ParseCreditDebit(s string) (CreditDebit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cr", "credit":
		return Credit, nil
	case "dr", "debit":
		return Debit, nil
	}
	return "", fmt.Errorf("unknown credit/debit value %q", s)
}

// ParseDate parses day/month/year text into a calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar date as zero-padded day/month/year text.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// CivilDate drops the time of day, keeping t's own calendar date.
// Date-picker values carry a clock time; transaction dates do not.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
