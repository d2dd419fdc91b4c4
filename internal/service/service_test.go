package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
	"github.com/Wass76/Uqar-sub002/internal/repository/memory"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type clock struct{ at time.Time }

func (c *clock) now() time.Time { return c.at }
func (c *clock) advance(d time.Duration) { c.at = c.at.Add(d) }

type fixture struct {
	svc     *Service
	store   *memory.Store
	clock   *clock
	metrics *metrics.Metrics
	actor   domain.Actor
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{at: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	st := memory.New().WithClock(clk.now)
	conv := currency.NewConverter(currency.StoreRates{Store: st}).WithClock(clk.now)
	m := metrics.New()
	svc := New(st, conv, DefaultOptions(), logging.Nop(), m).WithClock(clk.now)
	return &fixture{
		svc:     svc,
		store:   st,
		clock:   clk,
		metrics: m,
		actor:   domain.Actor{PharmacyID: 1, UserID: 9, Username: "cashier"},
		ctx:     context.Background(),
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// stocked registers a pharmacy product with the given box price and parts
// per box and receives qty boxes of it.
func (f *fixture) stocked(t *testing.T, productID int64, price string, partsPerBox, qty int) *domain.StockItem {
	t.Helper()
	_, err := f.svc.RegisterProduct(f.ctx, ProductInput{
		ID:           productID,
		Type:         domain.ProductPharmacy,
		Name:         "product",
		SellingPrice: money(price),
		PartsPerBox:  partsPerBox,
	})
	require.NoError(t, err)
	item, err := f.svc.ReceiveStock(f.ctx, f.actor, StockItemInput{
		ProductID:     productID,
		ProductType:   domain.ProductPharmacy,
		Quantity:      qty,
		PurchasePrice: money("500"),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) sell(t *testing.T, in CreateSaleInput) *domain.SaleInvoice {
	t.Helper()
	inv, err := f.svc.CreateSale(f.ctx, f.actor, in)
	require.NoError(t, err)
	return inv
}

func (f *fixture) stockLevels(t *testing.T, id int64) (int, int) {
	t.Helper()
	item, err := f.svc.GetStockItem(f.ctx, f.actor, id)
	require.NoError(t, err)
	return item.Quantity, item.LooseParts
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	box, err := f.svc.MoneyBox(f.ctx, f.actor)
	require.NoError(t, err)
	return box.CurrentBalance
}

func (f *fixture) transactions(t *testing.T) []domain.MoneyBoxTransaction {
	t.Helper()
	txns, err := f.svc.ListTransactions(f.ctx, f.actor, store.TransactionFilter{All: true})
	require.NoError(t, err)
	return txns
}

func (f *fixture) debtsFor(t *testing.T, saleID int64) []domain.CustomerDebt {
	t.Helper()
	all, err := f.svc.ListDebts(f.ctx, f.actor, store.DebtFilter{})
	require.NoError(t, err)
	var out []domain.CustomerDebt
	for _, d := range all {
		if d.SaleInvoiceID != nil && *d.SaleInvoiceID == saleID {
			out = append(out, d)
		}
	}
	return out
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.From(err).Code, err.Error())
}

func TestRequireActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSale(f.ctx, domain.Actor{}, CreateSaleInput{})
	assertCode(t, err, apperr.CodeValidation)
}

func TestDocumentNumberFormat(t *testing.T) {
	at := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	n := documentNumber("INV", at)
	assert.Regexp(t, `^INV-20260309-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, documentNumber("INV", at))
}

func TestToBaseUsesFrozenInvoiceRate(t *testing.T) {
	f := newFixture(t)
	inv := &domain.SaleInvoice{Currency: domain.CurrencyUSD, ExchangeRate: money("15000")}
	assertMoney(t, "30000", f.svc.toBase(inv, money("2")))
	assertMoney(t, "2", f.svc.fromBase(inv, money("30000")))

	base := &domain.SaleInvoice{Currency: domain.CurrencySYP, ExchangeRate: decimal.NewFromInt(1)}
	assertMoney(t, "1234.57", f.svc.toBase(base, money("1234.567")))
}
