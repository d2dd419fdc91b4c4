package excel

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

var stockHeaderAliases = map[string]string{
	"product id":     "product_id",
	"product":        "product_id",
	"رقم المنتج":     "product_id",
	"product type":   "product_type",
	"type":           "product_type",
	"نوع المنتج":     "product_type",
	"quantity":       "quantity",
	"qty":            "quantity",
	"boxes":          "quantity",
	"الكمية":         "quantity",
	"loose parts":    "loose_parts",
	"parts":          "loose_parts",
	"أجزاء":          "loose_parts",
	"purchase price": "purchase_price",
	"buy price":      "purchase_price",
	"سعر الشراء":     "purchase_price",
	"batch":          "batch_number",
	"batch number":   "batch_number",
	"رقم التشغيلة":   "batch_number",
	"expiry":         "expiry_date",
	"expiry date":    "expiry_date",
	"تاريخ الانتهاء": "expiry_date",
}

type StockRow struct {
	ProductID     int64
	ProductType   domain.ProductType
	Quantity      int
	LooseParts    int
	PurchasePrice decimal.Decimal
	BatchNumber   string
	ExpiryDate    *time.Time
}

// ParseStockRows reads a goods-received sheet. Product type defaults to
// PHARMACY when the column is absent or blank.
func ParseStockRows(fileName string, reader io.Reader) ([]StockRow, error) {
	rows, err := readTable(fileName, reader)
	if err != nil {
		return nil, err
	}
	colMap := mapColumns(rows[0], stockHeaderAliases)
	if err := requireColumns(colMap, "product_id", "quantity"); err != nil {
		return nil, err
	}

	result := make([]StockRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		rawID := readCell(cells, colMap["product_id"])
		if rawID == "" {
			continue
		}
		productID, err := parseInt(rawID)
		if err != nil || productID <= 0 {
			return nil, fmt.Errorf("row %d invalid product_id", index+1)
		}

		productType := domain.ProductPharmacy
		if raw := optionalCell(cells, colMap, "product_type"); raw != "" {
			productType, err = domain.ParseProductType(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", index+1, err)
			}
		}

		qty, err := parseInt(readCell(cells, colMap["quantity"]))
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("row %d invalid quantity", index+1)
		}

		loose := 0
		if raw := optionalCell(cells, colMap, "loose_parts"); raw != "" {
			loose, err = parseInt(raw)
			if err != nil || loose < 0 {
				return nil, fmt.Errorf("row %d invalid loose_parts", index+1)
			}
		}

		price := decimal.Zero
		if raw := optionalCell(cells, colMap, "purchase_price"); raw != "" {
			price, err = parseDecimal(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d invalid purchase_price: %w", index+1, err)
			}
		}

		expiry, err := parseDate(optionalCell(cells, colMap, "expiry_date"))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid expiry_date: %w", index+1, err)
		}

		result = append(result, StockRow{
			ProductID:     int64(productID),
			ProductType:   productType,
			Quantity:      qty,
			LooseParts:    loose,
			PurchasePrice: price,
			BatchNumber:   optionalCell(cells, colMap, "batch_number"),
			ExpiryDate:    expiry,
		})
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("stock file has no valid data rows")
	}
	return result, nil
}
