package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type RefundItemInput struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason"`
}

type RefundInput struct {
	Reason string            `json:"reason"`
	Items  []RefundItemInput `json:"items" validate:"required,min=1,dive"`
}

func validateRefund(in RefundInput) error {
	if len(in.Items) == 0 {
		return apperr.Validation("refund must contain at least one item")
	}
	seen := make(map[int64]bool, len(in.Items))
	for i, line := range in.Items {
		if line.ItemID <= 0 {
			return apperr.Validationf("items[%d]: item id is required", i)
		}
		if line.Quantity <= 0 {
			return apperr.Validationf("items[%d]: quantity must be positive", i)
		}
		if seen[line.ItemID] {
			return apperr.Validationf("items[%d]: item %d appears more than once", i, line.ItemID)
		}
		seen[line.ItemID] = true
	}
	return nil
}

// CreateRefund refunds part or all of a sale in one unit of work. Lines are
// valued net of the invoice discount; the cash portion is paid out of the
// money box and the rest cancels outstanding debt.
func (s *Service) CreateRefund(ctx context.Context, actor domain.Actor, saleID int64, in RefundInput) (_ *domain.SaleRefund, err error) {
	defer s.observe("create_refund", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateRefund(in); err != nil {
		return nil, err
	}

	var refund *domain.SaleRefund
	err = s.tx(ctx, "create refund", func(ctx context.Context, repo store.Repository) error {
		now := s.now().UTC()
		inv, err := repo.GetSaleForUpdate(ctx, actor.PharmacyID, saleID)
		if err != nil {
			return notFound(err, "sale", saleID)
		}
		if inv.Status != domain.InvoiceSold {
			return apperr.Conflict(apperr.CodeSaleNotRefundable, "only sold invoices can be refunded").
				WithDetail("status", string(inv.Status))
		}
		if inv.RefundStatus == domain.RefundFully {
			return apperr.AlreadyFullyRefunded(inv.ID)
		}

		ref := &domain.SaleRefund{
			PharmacyID:    actor.PharmacyID,
			SaleInvoiceID: inv.ID,
			RefundNumber:  documentNumber("RF", now),
			Reason:        in.Reason,
			Currency:      inv.Currency,
			Audit:         actor.Audit(),
		}

		total := decimal.Zero
		for _, line := range in.Items {
			item := inv.Item(line.ItemID)
			if item == nil {
				return apperr.NotFound("sale item", line.ItemID)
			}
			if available := item.AvailableForRefund(); line.Quantity > available {
				return apperr.RefundExceedsAvailable(item.ID, line.Quantity, available)
			}
			amount := netLineAmount(inv, item, line.Quantity)
			item.RefundedQuantity += line.Quantity
			ref.Items = append(ref.Items, domain.SaleRefundItem{
				SaleInvoiceItemID: item.ID,
				StockItemID:       item.StockItemID,
				Quantity:          line.Quantity,
				Partial:           item.IsPartial(),
				UnitPrice:         item.UnitPrice,
				Subtotal:          amount,
				Reason:            line.Reason,
			})
			total = total.Add(amount)
		}

		inv.ApplyRefundStatus()
		if inv.RefundStatus == domain.RefundFully {
			// The closing refund takes whatever net total is left so the
			// invoice lands on exactly zero.
			last := &ref.Items[len(ref.Items)-1]
			last.Subtotal = last.Subtotal.Add(inv.TotalAmount.Sub(total))
			total = inv.TotalAmount
		}
		total = domain.MinMoney(total, inv.TotalAmount)

		cash := domain.MinMoney(total, inv.PaidAmount)
		debtPortion := total.Sub(cash)
		ref.TotalRefundAmount = total
		ref.CashAmount = cash
		ref.DebtAmount = debtPortion
		ref.RefundStatus = inv.RefundStatus

		for _, line := range in.Items {
			if err := repo.UpdateSaleItemRefunded(ctx, inv.Item(line.ItemID)); err != nil {
				return err
			}
		}
		if err := repo.InsertRefund(ctx, ref); err != nil {
			return err
		}

		order := make([]int, len(ref.Items))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return ref.Items[order[a]].StockItemID < ref.Items[order[b]].StockItemID
		})
		for _, i := range order {
			if _, err := s.restoreRefundLine(ctx, repo, actor.PharmacyID, &ref.Items[i]); err != nil {
				return err
			}
		}

		if debtPortion.IsPositive() {
			if err := s.reduceSaleDebt(ctx, repo, inv, s.toBase(inv, debtPortion), now); err != nil {
				return err
			}
		}
		if cash.IsPositive() {
			_, err := s.appendCash(ctx, repo, actor, cashEntry{
				Type:             domain.TxSaleRefund,
				Amount:           s.toBase(inv, cash),
				OriginalCurrency: inv.Currency,
				OriginalAmount:   cash,
				Rate:             inv.ExchangeRate,
				ReferenceID:      ref.ID,
				ReferenceType:    domain.RefSaleRefund,
				Description:      "refund " + ref.RefundNumber + " for " + inv.InvoiceNumber,
			})
			if err != nil {
				return err
			}
		}

		inv.TotalAmount = inv.TotalAmount.Sub(total)
		inv.PaidAmount = inv.PaidAmount.Sub(cash)
		inv.RemainingAmount = inv.TotalAmount.Sub(inv.PaidAmount)
		inv.RefundedAmount = inv.RefundedAmount.Add(total)
		if inv.RemainingAmount.IsNegative() || inv.PaidAmount.IsNegative() {
			return apperr.Invariant(apperr.CodeLedgerInconsistent, "refund would leave the invoice with negative amounts")
		}
		inv.ApplyPaymentStatus()
		if err := repo.UpdateSaleSettlement(ctx, inv); err != nil {
			return err
		}

		refund = ref
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRefund(string(refund.RefundStatus), refund.TotalRefundAmount)
	if refund.CashAmount.IsPositive() {
		s.metrics.RecordMoneyBoxTransaction(string(domain.TxSaleRefund))
	}
	s.logger.Audit(ctx, "refund.created", "sale_refund", refund.ID,
		"saleId", refund.SaleInvoiceID,
		"total", refund.TotalRefundAmount.StringFixed(domain.MoneyScale),
		"cash", refund.CashAmount.StringFixed(domain.MoneyScale),
		"debt", refund.DebtAmount.StringFixed(domain.MoneyScale),
		"refundStatus", refund.RefundStatus,
		"userId", actor.UserID,
	)
	return refund, nil
}

// netLineAmount values the next qty refundable units of item as the growth
// of the line's cumulative refunded value, so refunding a line in pieces adds
// up to exactly its net subtotal.
func netLineAmount(inv *domain.SaleInvoice, item *domain.SaleInvoiceItem, qty int) decimal.Decimal {
	return lineValue(inv, item, item.RefundedQuantity+qty).Sub(lineValue(inv, item, item.RefundedQuantity))
}

// lineValue is the share of the line subtotal covered by units sold units,
// net of the invoice-level discount in proportion to the line's share of the
// gross.
func lineValue(inv *domain.SaleInvoice, item *domain.SaleInvoiceItem, units int) decimal.Decimal {
	sold := item.SoldUnits()
	if units <= 0 || sold <= 0 {
		return decimal.Zero
	}
	value := item.Subtotal
	if units != sold {
		value = value.Mul(decimal.NewFromInt(int64(units))).Div(decimal.NewFromInt(int64(sold)))
	}
	if inv.DiscountAmount.IsPositive() && inv.GrossAmount.IsPositive() {
		net := inv.GrossAmount.Sub(inv.DiscountAmount)
		value = value.Mul(net).Div(inv.GrossAmount)
	}
	return domain.RoundMoney(value)
}

// reduceSaleDebt cancels the debt portion of a refund against the sale's open
// debt. A missing debt or an excess portion is logged and tolerated.
func (s *Service) reduceSaleDebt(ctx context.Context, repo store.Repository, inv *domain.SaleInvoice, amount decimal.Decimal, now time.Time) error {
	log := s.logger.WithComponent("refunds").WithContext(ctx)
	debt, err := repo.GetOpenDebtForSaleForUpdate(ctx, inv.PharmacyID, inv.ID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("refund debt portion has no open debt",
			"saleId", inv.ID,
			"amount", amount.StringFixed(domain.MoneyScale),
		)
		return nil
	}
	if err != nil {
		return err
	}
	excess := reduceDebt(debt, amount, now)
	if excess.IsPositive() {
		log.Warn("refund debt portion exceeds remaining debt",
			"saleId", inv.ID,
			"debtId", debt.ID,
			"excess", excess.StringFixed(domain.MoneyScale),
		)
	}
	return repo.UpdateDebt(ctx, debt)
}

func (s *Service) GetRefund(ctx context.Context, actor domain.Actor, id int64) (*domain.SaleRefund, error) {
	var ref *domain.SaleRefund
	err := s.view(ctx, "get refund", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetRefund(ctx, actor.PharmacyID, id)
		if err != nil {
			return notFound(err, "refund", id)
		}
		ref = found
		return nil
	})
	return ref, err
}

func (s *Service) ListRefunds(ctx context.Context, actor domain.Actor, filter store.RefundFilter) ([]domain.SaleRefund, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter.PharmacyID = actor.PharmacyID
	var out []domain.SaleRefund
	err := s.view(ctx, "list refunds", func(ctx context.Context, repo store.Repository) error {
		refunds, err := repo.ListRefunds(ctx, filter)
		out = refunds
		return err
	})
	return out, err
}
