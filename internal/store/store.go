// Package store declares the persistence contract of the settlement engine.
// Implementations live in internal/repository (PostgreSQL) and
// internal/repository/memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Repository is the set of reads and writes available inside a unit of work.
// Every *ForUpdate method holds the row until the surrounding unit of work ends.
type Repository interface {
	GetProduct(ctx context.Context, productID int64, productType domain.ProductType) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product *domain.Product) error
	InsertStockItem(ctx context.Context, item *domain.StockItem) error
	GetStockItem(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error)
	GetStockItemForUpdate(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error)
	UpdateStockLevels(ctx context.Context, item *domain.StockItem) error

	InsertSale(ctx context.Context, invoice *domain.SaleInvoice) error
	GetSale(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error)
	GetSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error)
	UpdateSaleSettlement(ctx context.Context, invoice *domain.SaleInvoice) error
	UpdateSaleItemRefunded(ctx context.Context, item *domain.SaleInvoiceItem) error
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.SaleInvoice, error)

	InsertRefund(ctx context.Context, refund *domain.SaleRefund) error
	GetRefund(ctx context.Context, pharmacyID, refundID int64) (*domain.SaleRefund, error)
	GetRefundItemForUpdate(ctx context.Context, pharmacyID, refundItemID int64) (*domain.SaleRefundItem, error)
	MarkRefundItemRestored(ctx context.Context, item *domain.SaleRefundItem) error
	ListRefunds(ctx context.Context, filter RefundFilter) ([]domain.SaleRefund, error)

	InsertDebt(ctx context.Context, debt *domain.CustomerDebt) error
	GetDebt(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error)
	GetDebtForUpdate(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error)
	GetOpenDebtForSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.CustomerDebt, error)
	UpdateDebt(ctx context.Context, debt *domain.CustomerDebt) error
	ListDebts(ctx context.Context, filter DebtFilter) ([]domain.CustomerDebt, error)
	MarkOverdueDebts(ctx context.Context, pharmacyID int64, now time.Time) (int, error)

	GetMoneyBox(ctx context.Context, pharmacyID int64) (*domain.MoneyBox, error)
	EnsureMoneyBoxForUpdate(ctx context.Context, pharmacyID int64, currency domain.Currency) (*domain.MoneyBox, error)
	UpdateMoneyBox(ctx context.Context, box *domain.MoneyBox) error
	InsertMoneyBoxTransaction(ctx context.Context, txn *domain.MoneyBoxTransaction) error
	LastMoneyBoxTransaction(ctx context.Context, moneyBoxID int64) (*domain.MoneyBoxTransaction, error)
	CountMoneyBoxTransactions(ctx context.Context, moneyBoxID int64) (int, error)
	ListMoneyBoxTransactions(ctx context.Context, filter TransactionFilter) ([]domain.MoneyBoxTransaction, error)

	GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error)
	SetActiveRate(ctx context.Context, rate *domain.ExchangeRate) error
}

// Store runs units of work. WithinTx commits when fn returns nil and rolls
// back otherwise; View runs fn without write isolation.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	View(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Ping(ctx context.Context) error
}

type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type SaleFilter struct {
	PharmacyID    int64
	CustomerID    *int64
	Status        *domain.InvoiceStatus
	PaymentStatus *domain.PaymentStatus
	From          *time.Time
	To            *time.Time
	Page
}

type RefundFilter struct {
	PharmacyID    int64
	SaleInvoiceID *int64
	From          *time.Time
	To            *time.Time
	Page
}

type DebtFilter struct {
	PharmacyID int64
	CustomerID *int64
	Status     *domain.DebtStatus
	Page
}

type TransactionFilter struct {
	PharmacyID int64
	Type       *domain.MoneyBoxTransactionType
	From       *time.Time
	To         *time.Time
	// All disables paging; used by reconciliation and statement export.
	All bool
	Page
}

// InRange reports whether t falls in the optional [from, to) window.
func InRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}
