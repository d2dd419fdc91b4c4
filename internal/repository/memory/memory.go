// Package memory is an in-process implementation of store.Store used for
// tests and single-node development runs (STORAGE=memory).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type productKey struct {
	id  int64
	typ domain.ProductType
}

type state struct {
	seq      map[string]int64
	products map[productKey]domain.Product
	stock    map[int64]domain.StockItem
	sales    map[int64]domain.SaleInvoice
	refunds  map[int64]domain.SaleRefund
	debts    map[int64]domain.CustomerDebt
	boxes    map[int64]domain.MoneyBox
	txns     []domain.MoneyBoxTransaction
	rates    []domain.ExchangeRate
}

func newState() *state {
	return &state{
		seq:      map[string]int64{},
		products: map[productKey]domain.Product{},
		stock:    map[int64]domain.StockItem{},
		sales:    map[int64]domain.SaleInvoice{},
		refunds:  map[int64]domain.SaleRefund{},
		debts:    map[int64]domain.CustomerDebt{},
		boxes:    map[int64]domain.MoneyBox{},
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) clone() *state {
	c := &state{
		seq:      make(map[string]int64, len(s.seq)),
		products: make(map[productKey]domain.Product, len(s.products)),
		stock:    make(map[int64]domain.StockItem, len(s.stock)),
		sales:    make(map[int64]domain.SaleInvoice, len(s.sales)),
		refunds:  make(map[int64]domain.SaleRefund, len(s.refunds)),
		debts:    make(map[int64]domain.CustomerDebt, len(s.debts)),
		boxes:    make(map[int64]domain.MoneyBox, len(s.boxes)),
		txns:     append([]domain.MoneyBoxTransaction(nil), s.txns...),
		rates:    append([]domain.ExchangeRate(nil), s.rates...),
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = copySale(v)
	}
	for k, v := range s.refunds {
		c.refunds[k] = copyRefund(v)
	}
	for k, v := range s.debts {
		c.debts[k] = v
	}
	for k, v := range s.boxes {
		c.boxes[k] = v
	}
	return c
}

func copySale(inv domain.SaleInvoice) domain.SaleInvoice {
	inv.Items = append([]domain.SaleInvoiceItem(nil), inv.Items...)
	return inv
}

func copyRefund(r domain.SaleRefund) domain.SaleRefund {
	r.Items = append([]domain.SaleRefundItem(nil), r.Items...)
	return r
}

// Store serializes every unit of work behind one mutex. A unit of work runs
// against a copy of the state that replaces the live state on success.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the timestamp source used for created/updated columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &repo{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &repo{st: s.st.clone(), now: s.now})
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
