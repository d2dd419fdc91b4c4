package excel

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

const statementSheet = "Statement"

type Statement struct {
	PharmacyID   int64
	Currency     string
	Balance      decimal.Decimal
	GeneratedAt  time.Time
	Transactions []domain.MoneyBoxTransaction
}

var statementHeader = []string{
	"ID", "Date", "Type", "النوع", "Amount", "Balance Before", "Balance After",
	"Original Currency", "Original Amount", "Exchange Rate", "Reference", "Description", "User",
}

// WriteStatement renders a money box statement as an xlsx workbook.
func WriteStatement(w io.Writer, st Statement) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), statementSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	summary := [][]any{
		{"Pharmacy", st.PharmacyID},
		{"Currency", st.Currency},
		{"Balance", st.Balance.StringFixed(domain.MoneyScale)},
		{"Generated", st.GeneratedAt.Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := file.SetSheetRow(statementSheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	headerRow := len(summary) + 2
	headerCell, _ := excelize.CoordinatesToCellName(1, headerRow)
	header := make([]any, len(statementHeader))
	for i, h := range statementHeader {
		header[i] = h
	}
	if err := file.SetSheetRow(statementSheet, headerCell, &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, txn := range st.Transactions {
		row := []any{
			txn.ID,
			txn.CreatedAt.Format("2006-01-02 15:04:05"),
			string(txn.Type),
			txn.Type.Label().AR,
			signedFloat(txn),
			txn.BalanceBefore.InexactFloat64(),
			txn.BalanceAfter.InexactFloat64(),
			"",
			"",
			"",
			reference(txn),
			txn.Description,
			txn.Audit.CreatedByName,
		}
		if txn.OriginalCurrency != nil {
			row[7] = string(*txn.OriginalCurrency)
		}
		if txn.OriginalAmount.Valid {
			row[8] = txn.OriginalAmount.Decimal.InexactFloat64()
		}
		if txn.ExchangeRate.Valid {
			row[9] = txn.ExchangeRate.Decimal.String()
		}
		cell, _ := excelize.CoordinatesToCellName(1, headerRow+1+i)
		if err := file.SetSheetRow(statementSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := file.SetColWidth(statementSheet, "A", "M", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func signedFloat(txn domain.MoneyBoxTransaction) float64 {
	return txn.SignedAmount().InexactFloat64()
}

func reference(txn domain.MoneyBoxTransaction) string {
	if txn.ReferenceID == nil {
		return ""
	}
	return txn.ReferenceType + "#" + strconv.FormatInt(*txn.ReferenceID, 10)
}
