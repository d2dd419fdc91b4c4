package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashCustomerLabel is shown for sales without a registered customer.
const CashCustomerLabel = "cash customer"

type Product struct {
	ID           int64           `json:"id"`
	Type         ProductType     `json:"type"`
	Name         string          `json:"name"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	PartsPerBox  int             `json:"parts_per_box"`
}

type StockItem struct {
	ID            int64           `json:"id"`
	PharmacyID    int64           `json:"pharmacy_id"`
	ProductID     int64           `json:"product_id"`
	ProductType   ProductType     `json:"product_type"`
	Quantity      int             `json:"quantity"`
	LooseParts    int             `json:"loose_parts"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	BatchNumber   string          `json:"batch_number,omitempty"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SaleInvoice struct {
	ID              int64             `json:"id"`
	PharmacyID      int64             `json:"pharmacy_id"`
	CustomerID      *int64            `json:"customer_id,omitempty"`
	InvoiceNumber   string            `json:"invoice_number"`
	InvoiceDate     time.Time         `json:"invoice_date"`
	Currency        Currency          `json:"currency"`
	ExchangeRate    decimal.Decimal   `json:"exchange_rate"`
	RateSource      string            `json:"rate_source"`
	RateTimestamp   time.Time         `json:"rate_timestamp"`
	ExchangeRateID  *int64            `json:"exchange_rate_id,omitempty"`
	RateProvider    string            `json:"rate_provider,omitempty"`
	PaymentType     PaymentType       `json:"payment_type"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	DiscountType    *DiscountType     `json:"discount_type,omitempty"`
	DiscountValue   decimal.Decimal   `json:"discount_value"`
	GrossAmount     decimal.Decimal   `json:"gross_amount"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	PaidAmount      decimal.Decimal   `json:"paid_amount"`
	RemainingAmount decimal.Decimal   `json:"remaining_amount"`
	RefundedAmount  decimal.Decimal   `json:"refunded_amount"`
	Status          InvoiceStatus     `json:"status"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	RefundStatus    RefundStatus      `json:"refund_status"`
	DebtDueDate     *time.Time        `json:"debt_due_date,omitempty"`
	Audit           Audit             `json:"audit"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Items           []SaleInvoiceItem `json:"items,omitempty"`
}

func (inv *SaleInvoice) CustomerLabel() string {
	if inv.CustomerID == nil {
		return CashCustomerLabel
	}
	return ""
}

func (inv *SaleInvoice) Item(id int64) *SaleInvoiceItem {
	for i := range inv.Items {
		if inv.Items[i].ID == id {
			return &inv.Items[i]
		}
	}
	return nil
}

// ApplyPaymentStatus derives PaymentStatus from the paid and remaining amounts.
func (inv *SaleInvoice) ApplyPaymentStatus() {
	switch {
	case !inv.RemainingAmount.IsPositive():
		inv.PaymentStatus = PaymentFullyPaid
	case inv.PaidAmount.IsPositive():
		inv.PaymentStatus = PaymentPartiallyPaid
	default:
		inv.PaymentStatus = PaymentUnpaid
	}
}

// ApplyRefundStatus derives RefundStatus from the per-line refunded quantities.
func (inv *SaleInvoice) ApplyRefundStatus() {
	if len(inv.Items) == 0 {
		return
	}
	some, all := false, true
	for _, item := range inv.Items {
		if item.RefundedQuantity > 0 {
			some = true
		}
		if item.AvailableForRefund() > 0 {
			all = false
		}
	}
	switch {
	case all:
		inv.RefundStatus = RefundFully
	case some:
		inv.RefundStatus = RefundPartially
	default:
		inv.RefundStatus = RefundNone
	}
}

type SaleInvoiceItem struct {
	ID               int64           `json:"id"`
	SaleInvoiceID    int64           `json:"sale_invoice_id"`
	StockItemID      int64           `json:"stock_item_id"`
	ProductID        int64           `json:"product_id"`
	ProductType      ProductType     `json:"product_type"`
	ProductName      string          `json:"product_name,omitempty"`
	Quantity         int             `json:"quantity"`
	PartsSold        *int            `json:"parts_sold,omitempty"`
	BoxesOpened      int             `json:"boxes_opened,omitempty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	PriceSource      string          `json:"price_source"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	RefundedQuantity int             `json:"refunded_quantity"`
}

func (it SaleInvoiceItem) IsPartial() bool { return it.PartsSold != nil }

// SoldUnits is the number of refundable units on the line: parts for a
// partial sale, whole boxes otherwise.
func (it SaleInvoiceItem) SoldUnits() int {
	if it.PartsSold != nil {
		return *it.PartsSold
	}
	return it.Quantity
}

func (it SaleInvoiceItem) AvailableForRefund() int {
	return it.SoldUnits() - it.RefundedQuantity
}

type SaleRefund struct {
	ID                int64            `json:"id"`
	PharmacyID        int64            `json:"pharmacy_id"`
	SaleInvoiceID     int64            `json:"sale_invoice_id"`
	RefundNumber      string           `json:"refund_number"`
	Reason            string           `json:"reason,omitempty"`
	Currency          Currency         `json:"currency"`
	TotalRefundAmount decimal.Decimal  `json:"total_refund_amount"`
	CashAmount        decimal.Decimal  `json:"cash_amount"`
	DebtAmount        decimal.Decimal  `json:"debt_amount"`
	RefundStatus      RefundStatus     `json:"refund_status"`
	Audit             Audit            `json:"audit"`
	CreatedAt         time.Time        `json:"created_at"`
	Items             []SaleRefundItem `json:"items,omitempty"`
}

type SaleRefundItem struct {
	ID                int64           `json:"id"`
	SaleRefundID      int64           `json:"sale_refund_id"`
	SaleInvoiceItemID int64           `json:"sale_invoice_item_id"`
	StockItemID       int64           `json:"stock_item_id"`
	Quantity          int             `json:"quantity"`
	Partial           bool            `json:"partial"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Reason            string          `json:"reason,omitempty"`
	StockRestored     bool            `json:"stock_restored"`
	RestoredAt        *time.Time      `json:"restored_at,omitempty"`
}

type CustomerDebt struct {
	ID              int64           `json:"id"`
	PharmacyID      int64           `json:"pharmacy_id"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	SaleInvoiceID   *int64          `json:"sale_invoice_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	DueDate         time.Time       `json:"due_date"`
	Status          DebtStatus      `json:"status"`
	PaymentMethod   *PaymentMethod  `json:"payment_method,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Audit           Audit           `json:"audit"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

type CustomerDebtSummary struct {
	CustomerID      int64           `json:"customer_id"`
	DebtCount       int             `json:"debt_count"`
	OpenCount       int             `json:"open_count"`
	OverdueCount    int             `json:"overdue_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

type MoneyBox struct {
	ID             int64           `json:"id"`
	PharmacyID     int64           `json:"pharmacy_id"`
	Currency       Currency        `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type MoneyBoxTransaction struct {
	ID                int64                   `json:"id"`
	MoneyBoxID        int64                   `json:"money_box_id"`
	PharmacyID        int64                   `json:"pharmacy_id"`
	Type              MoneyBoxTransactionType `json:"type"`
	Amount            decimal.Decimal         `json:"amount"`
	BalanceBefore     decimal.Decimal         `json:"balance_before"`
	BalanceAfter      decimal.Decimal         `json:"balance_after"`
	OriginalCurrency  *Currency               `json:"original_currency,omitempty"`
	OriginalAmount    decimal.NullDecimal     `json:"original_amount"`
	ConvertedCurrency Currency                `json:"converted_currency"`
	ConvertedAmount   decimal.Decimal         `json:"converted_amount"`
	ExchangeRate      decimal.NullDecimal     `json:"exchange_rate"`
	ReferenceID       *int64                  `json:"reference_id,omitempty"`
	ReferenceType     string                  `json:"reference_type,omitempty"`
	Description       string                  `json:"description,omitempty"`
	Audit             Audit                   `json:"audit"`
	CreatedAt         time.Time               `json:"created_at"`
}

// SignedAmount is the balance delta the transaction applied.
func (t MoneyBoxTransaction) SignedAmount() decimal.Decimal {
	if t.Type.Sign() < 0 {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Reference types recorded on cash-box transactions.
const (
	RefSaleInvoice  = "SALE_INVOICE"
	RefSaleRefund   = "SALE_REFUND"
	RefCustomerDebt = "CUSTOMER_DEBT"
)

type ExchangeRate struct {
	ID            int64           `json:"id"`
	FromCurrency  Currency        `json:"from_currency"`
	ToCurrency    Currency        `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	Source        string          `json:"source,omitempty"`
	IsActive      bool            `json:"is_active"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EffectiveAt reports whether the rate's effective window contains at.
func (r ExchangeRate) EffectiveAt(at time.Time) bool {
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}
