package backend

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/picker/internal/model"
)

// wireTransaction is the JSON shape the backend speaks. Amounts decode from
// numbers or strings and always encode as numbers.
type wireTransaction struct {
	ID          int             `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	CreditDebit string          `json:"creditDebit"`
	Amount      decimal.Decimal `json:"amount"`
}

func (w wireTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int         `json:"id"`
		Date        string      `json:"date"`
		Description string      `json:"description"`
		CreditDebit string      `json:"creditDebit"`
		Amount      json.Number `json:"amount"`
	}{w.ID, w.Date, w.Description, w.CreditDebit, json.Number(w.Amount.String())})
}

func toWire(t model.Transaction) wireTransaction {
	return wireTransaction{
		ID:          t.ID,
		Date:        t.Date,
		Description: t.Description,
		CreditDebit: string(t.CreditDebit),
		Amount:      t.Amount,
	}
}

func fromWire(w wireTransaction) model.Transaction {
	return model.Transaction{
		ID:          w.ID,
		Date:        w.Date,
		Description: w.Description,
		CreditDebit: model.CreditDebit(w.CreditDebit),
		Amount:      w.Amount,
	}
}

type uploadResponse struct {
	Transactions []wireTransaction `json:"transactions"`
}

type submitRequest struct {
	FinalSelected []wireTransaction `json:"finalSelected"`
}
