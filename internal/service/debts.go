package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// Debt amounts are kept in base currency.

func (s *Service) openSaleDebt(ctx context.Context, repo store.Repository, actor domain.Actor, inv *domain.SaleInvoice) error {
	amount := s.toBase(inv, inv.RemainingAmount)
	saleID := inv.ID
	debt := &domain.CustomerDebt{
		PharmacyID:      actor.PharmacyID,
		CustomerID:      inv.CustomerID,
		SaleInvoiceID:   &saleID,
		Amount:          amount,
		PaidAmount:      decimal.Zero,
		RemainingAmount: amount,
		DueDate:         *inv.DebtDueDate,
		Status:          domain.DebtActive,
		Notes:           "outstanding balance of " + inv.InvoiceNumber,
		Audit:           actor.Audit(),
	}
	return repo.InsertDebt(ctx, debt)
}

// reduceDebt lowers a debt's principal by amount, clamping at zero. It
// returns the part of amount that could not be applied.
func reduceDebt(debt *domain.CustomerDebt, amount decimal.Decimal, now time.Time) decimal.Decimal {
	reduction := domain.MinMoney(amount, debt.RemainingAmount)
	if !reduction.IsPositive() {
		return amount
	}
	debt.Amount = debt.Amount.Sub(reduction)
	debt.RemainingAmount = debt.RemainingAmount.Sub(reduction)
	if !debt.RemainingAmount.IsPositive() {
		debt.Status = domain.DebtPaid
		debt.PaidAt = &now
	}
	return amount.Sub(reduction)
}

type DebtPaymentInput struct {
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
}

// ApplyDebtPayment records a customer repayment: the debt is reduced, the
// money box credited and the linked invoice's paid amount brought forward.
func (s *Service) ApplyDebtPayment(ctx context.Context, actor domain.Actor, debtID int64, in DebtPaymentInput) (_ *domain.CustomerDebt, err error) {
	defer s.observe("debt_payment", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	amount := domain.RoundMoney(in.Amount)
	if !amount.IsPositive() {
		return nil, apperr.Validation("payment amount must be positive")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCash
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.Validationf("invalid payment method %q", in.PaymentMethod)
	}

	var result *domain.CustomerDebt
	err = s.tx(ctx, "apply debt payment", func(ctx context.Context, repo store.Repository) error {
		now := s.now().UTC()
		peek, err := repo.GetDebt(ctx, actor.PharmacyID, debtID)
		if err != nil {
			return notFound(err, "debt", debtID)
		}

		// Invoice before debt, matching the refund lock order.
		var inv *domain.SaleInvoice
		if peek.SaleInvoiceID != nil {
			inv, err = repo.GetSaleForUpdate(ctx, actor.PharmacyID, *peek.SaleInvoiceID)
			if err != nil {
				return notFound(err, "sale", *peek.SaleInvoiceID)
			}
		}

		debt, err := repo.GetDebtForUpdate(ctx, actor.PharmacyID, debtID)
		if err != nil {
			return notFound(err, "debt", debtID)
		}
		if debt.Status == domain.DebtPaid {
			return apperr.Conflict(apperr.CodeDebtAlreadyPaid, "debt is already paid")
		}
		if amount.GreaterThan(debt.RemainingAmount) {
			return apperr.Conflict(apperr.CodePaymentExceedsDebt, "payment exceeds the remaining debt").
				WithDetail("remaining", debt.RemainingAmount.StringFixed(domain.MoneyScale)).
				WithDetail("amount", amount.StringFixed(domain.MoneyScale))
		}

		method := in.PaymentMethod
		debt.PaidAmount = debt.PaidAmount.Add(amount)
		debt.RemainingAmount = debt.RemainingAmount.Sub(amount)
		debt.PaymentMethod = &method
		if in.Notes != "" {
			debt.Notes = in.Notes
		}
		if !debt.RemainingAmount.IsPositive() {
			debt.Status = domain.DebtPaid
			debt.PaidAt = &now
		}
		if err := repo.UpdateDebt(ctx, debt); err != nil {
			return err
		}

		_, err = s.appendCash(ctx, repo, actor, cashEntry{
			Type:          domain.TxDebtPayment,
			Amount:        amount,
			ReferenceID:   debt.ID,
			ReferenceType: domain.RefCustomerDebt,
			Description:   "debt repayment",
		})
		if err != nil {
			return err
		}

		if inv != nil && inv.Status == domain.InvoiceSold {
			if debt.Status == domain.DebtPaid {
				inv.PaidAmount = inv.TotalAmount
			} else {
				inv.PaidAmount = domain.MinMoney(inv.PaidAmount.Add(s.fromBase(inv, amount)), inv.TotalAmount)
			}
			inv.RemainingAmount = inv.TotalAmount.Sub(inv.PaidAmount)
			inv.ApplyPaymentStatus()
			if err := repo.UpdateSaleSettlement(ctx, inv); err != nil {
				return err
			}
		}

		result = debt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMoneyBoxTransaction(string(domain.TxDebtPayment))
	s.logger.Audit(ctx, "debt.payment", "customer_debt", result.ID,
		"amount", amount.StringFixed(domain.MoneyScale),
		"remaining", result.RemainingAmount.StringFixed(domain.MoneyScale),
		"status", result.Status,
		"userId", actor.UserID,
	)
	return result, nil
}

// MarkOverdueDebts flips ACTIVE debts past their due date to OVERDUE.
// pharmacyID 0 sweeps every pharmacy.
func (s *Service) MarkOverdueDebts(ctx context.Context, pharmacyID int64) (marked int, err error) {
	defer s.observe("mark_overdue", time.Now(), &err)
	now := s.now().UTC()
	err = s.tx(ctx, "mark overdue debts", func(ctx context.Context, repo store.Repository) error {
		n, err := repo.MarkOverdueDebts(ctx, pharmacyID, now)
		marked = n
		return err
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordOverdue(marked)
	s.logger.Info("overdue sweep finished", "pharmacyId", pharmacyID, "marked", marked)
	return marked, nil
}

func (s *Service) GetDebt(ctx context.Context, actor domain.Actor, id int64) (*domain.CustomerDebt, error) {
	var debt *domain.CustomerDebt
	err := s.view(ctx, "get debt", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetDebt(ctx, actor.PharmacyID, id)
		if err != nil {
			return notFound(err, "debt", id)
		}
		debt = found
		return nil
	})
	return debt, err
}

func (s *Service) ListDebts(ctx context.Context, actor domain.Actor, filter store.DebtFilter) ([]domain.CustomerDebt, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter.PharmacyID = actor.PharmacyID
	var out []domain.CustomerDebt
	err := s.view(ctx, "list debts", func(ctx context.Context, repo store.Repository) error {
		debts, err := repo.ListDebts(ctx, filter)
		out = debts
		return err
	})
	return out, err
}

// CustomerDebtSummary totals every debt of one customer.
func (s *Service) CustomerDebtSummary(ctx context.Context, actor domain.Actor, customerID int64) (domain.CustomerDebtSummary, error) {
	summary := domain.CustomerDebtSummary{
		CustomerID:      customerID,
		TotalAmount:     decimal.Zero,
		PaidAmount:      decimal.Zero,
		RemainingAmount: decimal.Zero,
	}
	if err := requireActor(actor); err != nil {
		return summary, err
	}
	if customerID <= 0 {
		return summary, apperr.Validation("customer id is required")
	}

	err := s.view(ctx, "customer debt summary", func(ctx context.Context, repo store.Repository) error {
		page := store.Page{Limit: 500}
		for {
			debts, err := repo.ListDebts(ctx, store.DebtFilter{PharmacyID: actor.PharmacyID, CustomerID: &customerID, Page: page})
			if err != nil {
				return err
			}
			for _, d := range debts {
				summary.DebtCount++
				if d.Status.Open() {
					summary.OpenCount++
				}
				if d.Status == domain.DebtOverdue {
					summary.OverdueCount++
				}
				summary.TotalAmount = summary.TotalAmount.Add(d.Amount)
				summary.PaidAmount = summary.PaidAmount.Add(d.PaidAmount)
				summary.RemainingAmount = summary.RemainingAmount.Add(d.RemainingAmount)
			}
			if len(debts) < page.Limit {
				return nil
			}
			page.Offset += page.Limit
		}
	})
	return summary, err
}
