package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

func TestPartialRefundReturnsCash(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})

	ref, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Reason: "damaged box",
		Items:  []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assertMoney(t, "800", ref.TotalRefundAmount)
	assertMoney(t, "800", ref.CashAmount)
	assertMoney(t, "0", ref.DebtAmount)
	assert.Equal(t, domain.RefundPartially, ref.RefundStatus)
	require.Len(t, ref.Items, 1)
	assert.True(t, ref.Items[0].StockRestored)
	assert.False(t, ref.Items[0].Partial)

	sale, err := f.svc.GetSale(f.ctx, f.actor, inv.ID)
	require.NoError(t, err)
	assertMoney(t, "800", sale.TotalAmount)
	assertMoney(t, "800", sale.PaidAmount)
	assertMoney(t, "0", sale.RemainingAmount)
	assertMoney(t, "800", sale.RefundedAmount)
	assert.Equal(t, domain.RefundPartially, sale.RefundStatus)
	assert.Equal(t, 1, sale.Items[0].RefundedQuantity)

	qty, _ := f.stockLevels(t, item.ID)
	assert.Equal(t, 9, qty)

	assertMoney(t, "800", f.balance(t))
	txns := f.transactions(t)
	require.Len(t, txns, 2)
	assert.Equal(t, domain.TxSaleRefund, txns[1].Type)
	assertMoney(t, "1600", txns[1].BalanceBefore)
	assertMoney(t, "800", txns[1].BalanceAfter)
	assert.Equal(t, domain.RefSaleRefund, txns[1].ReferenceType)
	assert.Equal(t, ref.ID, *txns[1].ReferenceID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refunds.WithLabelValues(string(domain.RefundPartially))))
}

func TestRefundExceedingAvailableRollsBack(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})

	_, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 3}},
	})
	assertCode(t, err, apperr.CodeRefundExceedsAvailable)

	sale, err := f.svc.GetSale(f.ctx, f.actor, inv.ID)
	require.NoError(t, err)
	assertMoney(t, "1600", sale.TotalAmount)
	assert.Equal(t, domain.RefundNone, sale.RefundStatus)
	assert.Equal(t, 0, sale.Items[0].RefundedQuantity)

	qty, _ := f.stockLevels(t, item.ID)
	assert.Equal(t, 8, qty)
	assertMoney(t, "1600", f.balance(t))

	refunds, err := f.svc.ListRefunds(f.ctx, f.actor, store.RefundFilter{})
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestRefundAcrossRequestsCannotExceedSold(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 3}},
	})
	lineID := inv.Items[0].ID

	_, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 2}}})
	require.NoError(t, err)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 2}}})
	assertCode(t, err, apperr.CodeRefundExceedsAvailable)
}

func TestFullRefundWithDiscountZeroesInvoice(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "1000", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType:   domain.PaymentTypeCash,
		DiscountType:  ptr(domain.DiscountFixed),
		DiscountValue: money("100"),
		Items:         []SaleItemInput{{StockItemID: item.ID, Quantity: 3}},
	})
	assertMoney(t, "2900", inv.TotalAmount)
	lineID := inv.Items[0].ID

	first, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 1}}})
	require.NoError(t, err)
	assertMoney(t, "966.67", first.TotalRefundAmount)

	second, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 2}}})
	require.NoError(t, err)
	assertMoney(t, "1933.33", second.TotalRefundAmount)
	assert.Equal(t, domain.RefundFully, second.RefundStatus)

	sale, err := f.svc.GetSale(f.ctx, f.actor, inv.ID)
	require.NoError(t, err)
	assertMoney(t, "0", sale.TotalAmount)
	assertMoney(t, "0", sale.PaidAmount)
	assertMoney(t, "0", sale.RemainingAmount)
	assertMoney(t, "2900", sale.RefundedAmount)
	assert.Equal(t, domain.RefundFully, sale.RefundStatus)

	assertMoney(t, "0", f.balance(t))
	qty, _ := f.stockLevels(t, item.ID)
	assert.Equal(t, 10, qty)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 1}}})
	assertCode(t, err, apperr.CodeAlreadyFullyRefunded)
}

func TestRefundOfCreditSaleReducesDebt(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "1000", 10, 10)
	due := f.clock.at.Add(7 * 24 * time.Hour)
	inv := f.sell(t, CreateSaleInput{
		CustomerID:  ptr(int64(5)),
		PaymentType: domain.PaymentTypeCredit,
		PaidAmount:  ptr(money("1000")),
		DebtDueDate: &due,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 3}},
	})

	ref, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assertMoney(t, "2000", ref.TotalRefundAmount)
	assertMoney(t, "1000", ref.CashAmount)
	assertMoney(t, "1000", ref.DebtAmount)

	debts := f.debtsFor(t, inv.ID)
	require.Len(t, debts, 1)
	assertMoney(t, "1000", debts[0].Amount)
	assertMoney(t, "1000", debts[0].RemainingAmount)
	assert.Equal(t, domain.DebtActive, debts[0].Status)

	sale, err := f.svc.GetSale(f.ctx, f.actor, inv.ID)
	require.NoError(t, err)
	assertMoney(t, "1000", sale.TotalAmount)
	assertMoney(t, "0", sale.PaidAmount)
	assertMoney(t, "1000", sale.RemainingAmount)
	assert.Equal(t, domain.PaymentUnpaid, sale.PaymentStatus)

	assertMoney(t, "0", f.balance(t))

	// Refunding the rest clears the debt.
	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)
	debts = f.debtsFor(t, inv.ID)
	assertMoney(t, "0", debts[0].RemainingAmount)
	assert.Equal(t, domain.DebtPaid, debts[0].Status)
}

func TestRefundOfForeignCurrencySaleConvertsCash(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "30000", 10, 10)
	_, err := f.svc.SetExchangeRate(f.ctx, f.actor, ExchangeRateInput{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencySYP,
		Rate:         money("15000"),
	})
	require.NoError(t, err)
	inv := f.sell(t, CreateSaleInput{
		Currency:    domain.CurrencyUSD,
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})

	ref, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyUSD, ref.Currency)
	assertMoney(t, "2", ref.CashAmount)

	txns := f.transactions(t)
	require.Len(t, txns, 2)
	assertMoney(t, "30000", txns[1].Amount)
	assertMoney(t, "30000", f.balance(t))
}

func TestPartRefundFoldsLoosePartsBackIntoBoxes(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "1000", 10, 2)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Parts: 13}},
	})

	ref, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 5}},
	})
	require.NoError(t, err)
	assert.True(t, ref.Items[0].Partial)
	assertMoney(t, "600", ref.TotalRefundAmount)

	qty, loose := f.stockLevels(t, item.ID)
	assert.Equal(t, 1, qty)
	assert.Equal(t, 2, loose)
	assert.Equal(t, 2*10-13+5, qty*10+loose)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 9}},
	})
	assertCode(t, err, apperr.CodeRefundExceedsAvailable)
}

func TestRestoreRefundLineStockIsIdempotent(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})
	ref, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{
		Items: []RefundItemInput{{ItemID: inv.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)

	restored, err := f.svc.RestoreRefundLineStock(f.ctx, f.actor, ref.Items[0].ID)
	require.NoError(t, err)
	assert.False(t, restored)

	qty, _ := f.stockLevels(t, item.ID)
	assert.Equal(t, 10, qty)

	_, err = f.svc.RestoreRefundLineStock(f.ctx, f.actor, 999)
	assertCode(t, err, apperr.CodeNotFound)
}

func TestRestoreRefundLineStockRestoresPendingLine(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})

	// A refund line recorded without touching stock.
	pending := &domain.SaleRefund{
		PharmacyID:    f.actor.PharmacyID,
		SaleInvoiceID: inv.ID,
		RefundNumber:  "RF-PENDING",
		Items: []domain.SaleRefundItem{{
			SaleInvoiceItemID: inv.Items[0].ID,
			StockItemID:       item.ID,
			Quantity:          2,
		}},
	}
	require.NoError(t, f.store.WithinTx(f.ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.InsertRefund(ctx, pending)
	}))

	restored, err := f.svc.RestoreRefundLineStock(f.ctx, f.actor, pending.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, restored)
	qty, _ := f.stockLevels(t, item.ID)
	assert.Equal(t, 10, qty)

	restored, err = f.svc.RestoreRefundLineStock(f.ctx, f.actor, pending.Items[0].ID)
	require.NoError(t, err)
	assert.False(t, restored)
	qty, _ = f.stockLevels(t, item.ID)
	assert.Equal(t, 10, qty)
}

func TestRefundInputValidation(t *testing.T) {
	f := newFixture(t)
	item := f.stocked(t, 1, "800", 10, 10)
	inv := f.sell(t, CreateSaleInput{
		PaymentType: domain.PaymentTypeCash,
		Items:       []SaleItemInput{{StockItemID: item.ID, Quantity: 2}},
	})
	lineID := inv.Items[0].ID

	_, err := f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{})
	assertCode(t, err, apperr.CodeValidation)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 0}}})
	assertCode(t, err, apperr.CodeValidation)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{
		{ItemID: lineID, Quantity: 1},
		{ItemID: lineID, Quantity: 1},
	}})
	assertCode(t, err, apperr.CodeValidation)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, inv.ID, RefundInput{Items: []RefundItemInput{{ItemID: 999, Quantity: 1}}})
	assertCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.CreateRefund(f.ctx, f.actor, 999, RefundInput{Items: []RefundItemInput{{ItemID: lineID, Quantity: 1}}})
	assertCode(t, err, apperr.CodeNotFound)
}

func TestNetLineAmountProratesDiscount(t *testing.T) {
	inv := &domain.SaleInvoice{GrossAmount: money("3000"), DiscountAmount: money("300")}
	line := &domain.SaleInvoiceItem{Quantity: 1, Subtotal: money("1000")}
	assertMoney(t, "900", netLineAmount(inv, line, 1))

	plain := &domain.SaleInvoice{GrossAmount: money("3000")}
	boxes := &domain.SaleInvoiceItem{Quantity: 3, Subtotal: money("3000")}
	assertMoney(t, "2000", netLineAmount(plain, boxes, 2))
}

func TestNetLineAmountAddsUpToLineSubtotal(t *testing.T) {
	inv := &domain.SaleInvoice{GrossAmount: money("1200")}
	line := &domain.SaleInvoiceItem{PartsSold: ptr(7), Subtotal: money("1200")}

	total := decimal.Zero
	for _, qty := range []int{3, 1, 3} {
		amount := netLineAmount(inv, line, qty)
		line.RefundedQuantity += qty
		total = total.Add(amount)
	}
	assertMoney(t, "1200", total)
	assertMoney(t, "171.43", netLineAmount(inv, &domain.SaleInvoiceItem{PartsSold: ptr(7), Subtotal: money("1200")}, 1))
}
