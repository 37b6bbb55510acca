// Package export writes transactions to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cleared-dev/picker/internal/model"
)

// Header is the CSV header row.
const Header = "id,date,description,credit_debit,amount"

const (
	numFields = 5
	colID     = 0
	colDate   = 1
	colDesc   = 2
	colCD     = 3
	colAmount = 4
)

// WriteTransactions writes txns to w, header first.
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, t := range txns {
		if err := cw.Write(MarshalTransaction(t)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(t model.Transaction) []string {
	row := make([]string, numFields)
	row[colID] = strconv.Itoa(t.ID)
	row[colDate] = t.Date
	row[colDesc] = t.Description
	row[colCD] = string(t.CreditDebit)
	row[colAmount] = t.Amount.String()
	return row
}
