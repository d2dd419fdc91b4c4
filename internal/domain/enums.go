package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Label carries the English and Arabic display names of an enum value.
type Label struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

func (l Label) In(lang string) string {
	if strings.EqualFold(lang, "ar") && l.AR != "" {
		return l.AR
	}
	return l.EN
}

type Currency string

const (
	CurrencySYP Currency = "SYP"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

var currencyLabels = map[Currency]Label{
	CurrencySYP: {EN: "Syrian Pound", AR: "ليرة سورية"},
	CurrencyUSD: {EN: "US Dollar", AR: "دولار أمريكي"},
	CurrencyEUR: {EN: "Euro", AR: "يورو"},
}

func (c Currency) Valid() bool  { _, ok := currencyLabels[c]; return ok }
func (c Currency) Label() Label { return currencyLabels[c] }

func ParseCurrency(raw string) (Currency, error) { return parseEnum(raw, currencyLabels, "currency") }

type PaymentType string

const (
	PaymentTypeCash   PaymentType = "CASH"
	PaymentTypeCredit PaymentType = "CREDIT"
)

var paymentTypeLabels = map[PaymentType]Label{
	PaymentTypeCash:   {EN: "Cash", AR: "نقدي"},
	PaymentTypeCredit: {EN: "Credit", AR: "آجل"},
}

func (p PaymentType) Valid() bool  { _, ok := paymentTypeLabels[p]; return ok }
func (p PaymentType) Label() Label { return paymentTypeLabels[p] }

func ParsePaymentType(raw string) (PaymentType, error) {
	return parseEnum(raw, paymentTypeLabels, "payment type")
}

type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodBankAccount PaymentMethod = "BANK_ACCOUNT"
)

var paymentMethodLabels = map[PaymentMethod]Label{
	PaymentMethodCash:        {EN: "Cash", AR: "نقداً"},
	PaymentMethodBankAccount: {EN: "Bank account", AR: "حساب بنكي"},
}

func (p PaymentMethod) Valid() bool  { _, ok := paymentMethodLabels[p]; return ok }
func (p PaymentMethod) Label() Label { return paymentMethodLabels[p] }

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	return parseEnum(raw, paymentMethodLabels, "payment method")
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED_AMOUNT"
)

var discountTypeLabels = map[DiscountType]Label{
	DiscountPercentage: {EN: "Percentage", AR: "نسبة مئوية"},
	DiscountFixed:      {EN: "Fixed amount", AR: "مبلغ ثابت"},
}

func (d DiscountType) Valid() bool  { _, ok := discountTypeLabels[d]; return ok }
func (d DiscountType) Label() Label { return discountTypeLabels[d] }

func ParseDiscountType(raw string) (DiscountType, error) {
	return parseEnum(raw, discountTypeLabels, "discount type")
}

type InvoiceStatus string

const (
	InvoiceSold      InvoiceStatus = "SOLD"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
	InvoiceVoid      InvoiceStatus = "VOID"
)

var invoiceStatusLabels = map[InvoiceStatus]Label{
	InvoiceSold:      {EN: "Sold", AR: "مباع"},
	InvoiceCancelled: {EN: "Cancelled", AR: "ملغى"},
	InvoiceVoid:      {EN: "Void", AR: "باطل"},
}

func (s InvoiceStatus) Valid() bool  { _, ok := invoiceStatusLabels[s]; return ok }
func (s InvoiceStatus) Label() Label { return invoiceStatusLabels[s] }

func ParseInvoiceStatus(raw string) (InvoiceStatus, error) {
	return parseEnum(raw, invoiceStatusLabels, "invoice status")
}

type PaymentStatus string

const (
	PaymentFullyPaid     PaymentStatus = "FULLY_PAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentUnpaid        PaymentStatus = "UNPAID"
)

var paymentStatusLabels = map[PaymentStatus]Label{
	PaymentFullyPaid:     {EN: "Fully paid", AR: "مدفوع بالكامل"},
	PaymentPartiallyPaid: {EN: "Partially paid", AR: "مدفوع جزئياً"},
	PaymentUnpaid:        {EN: "Unpaid", AR: "غير مدفوع"},
}

func (s PaymentStatus) Valid() bool  { _, ok := paymentStatusLabels[s]; return ok }
func (s PaymentStatus) Label() Label { return paymentStatusLabels[s] }

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return parseEnum(raw, paymentStatusLabels, "payment status")
}

type RefundStatus string

const (
	RefundNone      RefundStatus = "NO_REFUND"
	RefundPartially RefundStatus = "PARTIALLY_REFUNDED"
	RefundFully     RefundStatus = "FULLY_REFUNDED"
)

var refundStatusLabels = map[RefundStatus]Label{
	RefundNone:      {EN: "No refund", AR: "بدون إرجاع"},
	RefundPartially: {EN: "Partially refunded", AR: "مرتجع جزئياً"},
	RefundFully:     {EN: "Fully refunded", AR: "مرتجع بالكامل"},
}

func (s RefundStatus) Valid() bool  { _, ok := refundStatusLabels[s]; return ok }
func (s RefundStatus) Label() Label { return refundStatusLabels[s] }

func ParseRefundStatus(raw string) (RefundStatus, error) {
	return parseEnum(raw, refundStatusLabels, "refund status")
}

type DebtStatus string

const (
	DebtActive  DebtStatus = "ACTIVE"
	DebtPaid    DebtStatus = "PAID"
	DebtOverdue DebtStatus = "OVERDUE"
)

var debtStatusLabels = map[DebtStatus]Label{
	DebtActive:  {EN: "Active", AR: "نشط"},
	DebtPaid:    {EN: "Paid", AR: "مدفوع"},
	DebtOverdue: {EN: "Overdue", AR: "متأخر"},
}

func (s DebtStatus) Valid() bool  { _, ok := debtStatusLabels[s]; return ok }
func (s DebtStatus) Label() Label { return debtStatusLabels[s] }

// Open reports whether the debt still accepts payments and refund reductions.
func (s DebtStatus) Open() bool { return s == DebtActive || s == DebtOverdue }

func ParseDebtStatus(raw string) (DebtStatus, error) {
	return parseEnum(raw, debtStatusLabels, "debt status")
}

type ProductType string

const (
	ProductMaster   ProductType = "MASTER"
	ProductPharmacy ProductType = "PHARMACY"
)

var productTypeLabels = map[ProductType]Label{
	ProductMaster:   {EN: "Master catalog", AR: "الكتالوج الرئيسي"},
	ProductPharmacy: {EN: "Pharmacy catalog", AR: "كتالوج الصيدلية"},
}

func (p ProductType) Valid() bool  { _, ok := productTypeLabels[p]; return ok }
func (p ProductType) Label() Label { return productTypeLabels[p] }

func ParseProductType(raw string) (ProductType, error) {
	return parseEnum(raw, productTypeLabels, "product type")
}

type MoneyBoxTransactionType string

const (
	TxOpeningBalance MoneyBoxTransactionType = "OPENING_BALANCE"
	TxSalePayment    MoneyBoxTransactionType = "SALE_PAYMENT"
	TxDebtPayment    MoneyBoxTransactionType = "DEBT_PAYMENT"
	TxSaleRefund     MoneyBoxTransactionType = "SALE_REFUND"
	TxCashDeposit    MoneyBoxTransactionType = "CASH_DEPOSIT"
	TxCashWithdrawal MoneyBoxTransactionType = "CASH_WITHDRAWAL"
	TxAdjustment     MoneyBoxTransactionType = "ADJUSTMENT"
)

type txTypeInfo struct {
	Label
	sign int
}

// sign 0 means the stored amount carries its own sign.
var txTypeInfos = map[MoneyBoxTransactionType]txTypeInfo{
	TxOpeningBalance: {Label{EN: "Opening balance", AR: "رصيد افتتاحي"}, 1},
	TxSalePayment:    {Label{EN: "Sale payment", AR: "دفعة بيع"}, 1},
	TxDebtPayment:    {Label{EN: "Debt payment", AR: "تسديد دين"}, 1},
	TxSaleRefund:     {Label{EN: "Sale refund", AR: "مرتجع مبيعات"}, -1},
	TxCashDeposit:    {Label{EN: "Cash deposit", AR: "إيداع نقدي"}, 1},
	TxCashWithdrawal: {Label{EN: "Cash withdrawal", AR: "سحب نقدي"}, -1},
	TxAdjustment:     {Label{EN: "Adjustment", AR: "تسوية"}, 0},
}

func (t MoneyBoxTransactionType) Valid() bool  { _, ok := txTypeInfos[t]; return ok }
func (t MoneyBoxTransactionType) Label() Label { return txTypeInfos[t].Label }

// Sign is +1 for credits, -1 for debits and 0 for signed adjustments.
func (t MoneyBoxTransactionType) Sign() int { return txTypeInfos[t].sign }

func ParseMoneyBoxTransactionType(raw string) (MoneyBoxTransactionType, error) {
	table := make(map[MoneyBoxTransactionType]Label, len(txTypeInfos))
	for k, v := range txTypeInfos {
		table[k] = v.Label
	}
	return parseEnum(raw, table, "transaction type")
}

func parseEnum[T ~string](raw string, table map[T]Label, what string) (T, error) {
	candidate := T(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := table[candidate]; ok {
		return candidate, nil
	}
	known := make([]string, 0, len(table))
	for k := range table {
		known = append(known, string(k))
	}
	sort.Strings(known)
	var zero T
	return zero, fmt.Errorf("unknown %s %q (expected one of %s)", what, raw, strings.Join(known, ", "))
}
