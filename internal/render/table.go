// Package render draws transactions as text tables for the session shell.
package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/cleared-dev/picker/internal/model"
)

// Header is the table header row, left to right.
var Header = []string{"Sel", "ID", "Date", "Description", "Type", "Amount"}

// Table writes txns to w. selected may be nil, in which case the selection
// column is left blank.
func Table(w io.Writer, txns []model.Transaction, selected func(id int) bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(Header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_RIGHT,
	})

	for _, t := range txns {
		mark := ""
		if selected != nil {
			mark = "[ ]"
			if selected(t.ID) {
				mark = "[x]"
			}
		}
		table.Append([]string{
			mark,
			strconv.Itoa(t.ID),
			t.Date,
			t.Description,
			string(t.CreditDebit),
			t.Amount.StringFixed(2),
		})
	}
	table.SetFooter([]string{"", "", "", "", "", fmt.Sprintf("%d row(s)", len(txns))})

	table.Render()
}
