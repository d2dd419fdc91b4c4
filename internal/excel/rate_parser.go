package excel

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

var rateHeaderAliases = map[string]string{
	"from":           "from",
	"from currency":  "from",
	"من":             "from",
	"من عملة":        "from",
	"to":             "to",
	"to currency":    "to",
	"إلى":            "to",
	"الى":            "to",
	"إلى عملة":       "to",
	"rate":           "rate",
	"exchange rate":  "rate",
	"سعر الصرف":      "rate",
	"السعر":          "rate",
	"source":         "source",
	"المصدر":         "source",
	"effective from": "effective_from",
	"valid from":     "effective_from",
	"ساري من":        "effective_from",
	"effective to":   "effective_to",
	"valid to":       "effective_to",
	"ساري حتى":       "effective_to",
}

type RateRow struct {
	FromCurrency  domain.Currency
	ToCurrency    domain.Currency
	Rate          decimal.Decimal
	Source        string
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// ParseExchangeRates reads a rate sheet with from, to and rate columns.
func ParseExchangeRates(fileName string, reader io.Reader) ([]RateRow, error) {
	rows, err := readTable(fileName, reader)
	if err != nil {
		return nil, err
	}
	colMap := mapColumns(rows[0], rateHeaderAliases)
	if err := requireColumns(colMap, "from", "to", "rate"); err != nil {
		return nil, err
	}

	result := make([]RateRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		rawFrom := readCell(cells, colMap["from"])
		if rawFrom == "" {
			continue
		}
		from, err := domain.ParseCurrency(rawFrom)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", index+1, err)
		}
		to, err := domain.ParseCurrency(readCell(cells, colMap["to"]))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", index+1, err)
		}
		rate, err := parseDecimal(readCell(cells, colMap["rate"]))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid rate: %w", index+1, err)
		}
		effectiveFrom, err := parseDate(optionalCell(cells, colMap, "effective_from"))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid effective_from: %w", index+1, err)
		}
		effectiveTo, err := parseDate(optionalCell(cells, colMap, "effective_to"))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid effective_to: %w", index+1, err)
		}

		source := optionalCell(cells, colMap, "source")
		if source == "" {
			source = "import"
		}
		result = append(result, RateRow{
			FromCurrency:  from,
			ToCurrency:    to,
			Rate:          rate,
			Source:        source,
			EffectiveFrom: effectiveFrom,
			EffectiveTo:   effectiveTo,
		})
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("rate file has no valid data rows")
	}
	return result, nil
}
