package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/excel"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// cashEntry is one movement to append to a pharmacy's money box. Amount is
// in base currency; the original figures are kept when the movement came
// from another currency.
type cashEntry struct {
	Type             domain.MoneyBoxTransactionType
	Amount           decimal.Decimal
	OriginalCurrency domain.Currency
	OriginalAmount   decimal.Decimal
	Rate             decimal.Decimal
	ReferenceID      int64
	ReferenceType    string
	Description      string
}

// appendCash locks the pharmacy's money box (creating it empty on first use),
// checks the ledger head still matches the stored balance and appends e.
func (s *Service) appendCash(ctx context.Context, repo store.Repository, actor domain.Actor, e cashEntry) (*domain.MoneyBoxTransaction, error) {
	if !e.Type.Valid() {
		return nil, apperr.Invariant(apperr.CodeInternal, "unknown money box transaction type "+string(e.Type))
	}
	amount := domain.RoundMoney(e.Amount)
	sign := e.Type.Sign()
	if sign != 0 && !amount.IsPositive() {
		return nil, apperr.Validation("money box amount must be positive")
	}

	box, err := repo.EnsureMoneyBoxForUpdate(ctx, actor.PharmacyID, s.opts.BaseCurrency)
	if err != nil {
		return nil, err
	}
	if err := checkLedgerHead(ctx, repo, box); err != nil {
		return nil, err
	}

	delta := amount
	if sign < 0 {
		delta = amount.Neg()
	}
	after := box.CurrentBalance.Add(delta)
	if after.IsNegative() {
		return nil, apperr.InsufficientCash(
			box.CurrentBalance.StringFixed(domain.MoneyScale),
			amount.StringFixed(domain.MoneyScale),
		)
	}

	txn := &domain.MoneyBoxTransaction{
		MoneyBoxID:        box.ID,
		PharmacyID:        actor.PharmacyID,
		Type:              e.Type,
		Amount:            amount,
		BalanceBefore:     box.CurrentBalance,
		BalanceAfter:      after,
		ConvertedCurrency: box.Currency,
		ConvertedAmount:   amount,
		Description:       e.Description,
		ReferenceType:     e.ReferenceType,
		Audit:             actor.Audit(),
	}
	if e.ReferenceID != 0 {
		ref := e.ReferenceID
		txn.ReferenceID = &ref
	}
	if e.OriginalCurrency != "" && e.OriginalCurrency != box.Currency {
		original := e.OriginalCurrency
		txn.OriginalCurrency = &original
		txn.OriginalAmount = decimal.NewNullDecimal(e.OriginalAmount)
		txn.ExchangeRate = decimal.NewNullDecimal(e.Rate)
	}
	if err := repo.InsertMoneyBoxTransaction(ctx, txn); err != nil {
		return nil, err
	}

	box.CurrentBalance = after
	if err := repo.UpdateMoneyBox(ctx, box); err != nil {
		return nil, err
	}
	return txn, nil
}

func checkLedgerHead(ctx context.Context, repo store.Repository, box *domain.MoneyBox) error {
	expected := box.InitialBalance
	last, err := repo.LastMoneyBoxTransaction(ctx, box.ID)
	switch {
	case err == nil:
		expected = last.BalanceAfter
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if !expected.Equal(box.CurrentBalance) {
		return apperr.Invariant(apperr.CodeBalanceMismatch, "money box balance does not match its ledger").
			WithDetail("money_box_id", strconv.FormatInt(box.ID, 10)).
			WithDetail("stored_balance", box.CurrentBalance.StringFixed(domain.MoneyScale)).
			WithDetail("ledger_balance", expected.StringFixed(domain.MoneyScale))
	}
	return nil
}

// OpenMoneyBox sets the opening balance of the pharmacy's box. Opening again
// with the same balance is a no-op; once transactions exist the opening
// balance is fixed.
func (s *Service) OpenMoneyBox(ctx context.Context, actor domain.Actor, initial decimal.Decimal) (*domain.MoneyBox, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	initial = domain.RoundMoney(initial)
	if initial.IsNegative() {
		return nil, apperr.Validation("initial balance cannot be negative")
	}
	var out *domain.MoneyBox
	err := s.tx(ctx, "open money box", func(ctx context.Context, repo store.Repository) error {
		box, err := repo.EnsureMoneyBoxForUpdate(ctx, actor.PharmacyID, s.opts.BaseCurrency)
		if err != nil {
			return err
		}
		out = box
		if box.InitialBalance.Equal(initial) {
			return nil
		}
		count, err := repo.CountMoneyBoxTransactions(ctx, box.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict(apperr.CodeMoneyBoxAlreadyOpen, "money box already has transactions")
		}
		box.InitialBalance = initial
		box.CurrentBalance = initial
		return repo.UpdateMoneyBox(ctx, box)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "money_box.opened", "money_box", out.ID, "initialBalance", initial.StringFixed(domain.MoneyScale))
	return out, nil
}

// MoneyBox returns the pharmacy's box; a pharmacy that never moved cash has
// an empty box in base currency.
func (s *Service) MoneyBox(ctx context.Context, actor domain.Actor) (*domain.MoneyBox, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var box *domain.MoneyBox
	err := s.view(ctx, "get money box", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetMoneyBox(ctx, actor.PharmacyID)
		if errors.Is(err, store.ErrNotFound) {
			box = &domain.MoneyBox{PharmacyID: actor.PharmacyID, Currency: s.opts.BaseCurrency}
			return nil
		}
		box = found
		return err
	})
	return box, err
}

type CashMovementInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Service) Deposit(ctx context.Context, actor domain.Actor, in CashMovementInput) (*domain.MoneyBoxTransaction, error) {
	return s.moveCash(ctx, actor, domain.TxCashDeposit, in)
}

func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, in CashMovementInput) (*domain.MoneyBoxTransaction, error) {
	return s.moveCash(ctx, actor, domain.TxCashWithdrawal, in)
}

func (s *Service) moveCash(ctx context.Context, actor domain.Actor, typ domain.MoneyBoxTransactionType, in CashMovementInput) (_ *domain.MoneyBoxTransaction, err error) {
	defer s.observe("cash_movement", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !domain.RoundMoney(in.Amount).IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}
	var txn *domain.MoneyBoxTransaction
	err = s.tx(ctx, "move cash", func(ctx context.Context, repo store.Repository) error {
		appended, err := s.appendCash(ctx, repo, actor, cashEntry{Type: typ, Amount: in.Amount, Description: in.Description})
		txn = appended
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMoneyBoxTransaction(string(typ))
	s.logger.Audit(ctx, "money_box."+string(typ), "money_box_transaction", txn.ID,
		"amount", txn.Amount.StringFixed(domain.MoneyScale),
		"balanceAfter", txn.BalanceAfter.StringFixed(domain.MoneyScale),
		"userId", actor.UserID,
	)
	return txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, actor domain.Actor, filter store.TransactionFilter) ([]domain.MoneyBoxTransaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter.PharmacyID = actor.PharmacyID
	var out []domain.MoneyBoxTransaction
	err := s.view(ctx, "list money box transactions", func(ctx context.Context, repo store.Repository) error {
		txns, err := repo.ListMoneyBoxTransactions(ctx, filter)
		out = txns
		return err
	})
	return out, err
}

type Reconciliation struct {
	MoneyBoxID       int64           `json:"money_box_id"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	StoredBalance    decimal.Decimal `json:"stored_balance"`
	ReplayedBalance  decimal.Decimal `json:"replayed_balance"`
	TransactionCount int             `json:"transaction_count"`
	Balanced         bool            `json:"balanced"`
	BrokenAtID       *int64          `json:"broken_at_id,omitempty"`
}

// Reconcile replays the pharmacy's transaction log from the opening balance
// and fails with BALANCE_MISMATCH when the chain or the stored balance disagree.
func (s *Service) Reconcile(ctx context.Context, actor domain.Actor) (Reconciliation, error) {
	var rec Reconciliation
	if err := requireActor(actor); err != nil {
		return rec, err
	}
	err := s.view(ctx, "reconcile money box", func(ctx context.Context, repo store.Repository) error {
		box, err := repo.GetMoneyBox(ctx, actor.PharmacyID)
		if errors.Is(err, store.ErrNotFound) {
			rec.Balanced = true
			return nil
		}
		if err != nil {
			return err
		}
		txns, err := repo.ListMoneyBoxTransactions(ctx, store.TransactionFilter{PharmacyID: actor.PharmacyID, All: true})
		if err != nil {
			return err
		}
		rec = replay(box, txns)
		return nil
	})
	if err != nil {
		return rec, err
	}
	if !rec.Balanced {
		e := apperr.Invariant(apperr.CodeBalanceMismatch, "money box ledger does not replay to the stored balance").
			WithDetail("stored_balance", rec.StoredBalance.StringFixed(domain.MoneyScale)).
			WithDetail("replayed_balance", rec.ReplayedBalance.StringFixed(domain.MoneyScale))
		if rec.BrokenAtID != nil {
			e.WithDetail("broken_at_id", strconv.FormatInt(*rec.BrokenAtID, 10))
		}
		s.logger.WithError(e).Error("money box reconciliation failed", "pharmacyId", actor.PharmacyID)
		return rec, e
	}
	return rec, nil
}

func replay(box *domain.MoneyBox, txns []domain.MoneyBoxTransaction) Reconciliation {
	rec := Reconciliation{
		MoneyBoxID:       box.ID,
		InitialBalance:   box.InitialBalance,
		StoredBalance:    box.CurrentBalance,
		TransactionCount: len(txns),
		Balanced:         true,
	}
	running := box.InitialBalance
	for _, txn := range txns {
		next := running.Add(txn.SignedAmount())
		if rec.BrokenAtID == nil && (!txn.BalanceBefore.Equal(running) || !txn.BalanceAfter.Equal(next)) {
			id := txn.ID
			rec.BrokenAtID = &id
			rec.Balanced = false
		}
		running = next
	}
	rec.ReplayedBalance = running
	if !running.Equal(box.CurrentBalance) {
		rec.Balanced = false
	}
	return rec
}

// ExportStatement writes the pharmacy's transactions in [from, to) as an
// xlsx workbook.
func (s *Service) ExportStatement(ctx context.Context, actor domain.Actor, from, to *time.Time, w io.Writer) error {
	box, err := s.MoneyBox(ctx, actor)
	if err != nil {
		return err
	}
	txns, err := s.ListTransactions(ctx, actor, store.TransactionFilter{From: from, To: to, All: true})
	if err != nil {
		return err
	}
	return excel.WriteStatement(w, excel.Statement{
		PharmacyID:   actor.PharmacyID,
		Currency:     string(box.Currency),
		Balance:      box.CurrentBalance,
		GeneratedAt:  s.now().UTC(),
		Transactions: txns,
	})
}
