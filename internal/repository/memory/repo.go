package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type repo struct {
	st  *state
	now func() time.Time
}

var _ store.Repository = (*repo)(nil)

func (r *repo) stamp() time.Time { return r.now().UTC() }

func (r *repo) GetProduct(ctx context.Context, productID int64, productType domain.ProductType) (*domain.Product, error) {
	p, ok := r.st.products[productKey{productID, productType}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *repo) UpsertProduct(ctx context.Context, product *domain.Product) error {
	if product.PartsPerBox <= 0 {
		product.PartsPerBox = 1
	}
	r.st.products[productKey{product.ID, product.Type}] = *product
	return nil
}

func (r *repo) InsertStockItem(ctx context.Context, item *domain.StockItem) error {
	item.ID = r.st.next("stock")
	item.CreatedAt = r.stamp()
	item.UpdatedAt = item.CreatedAt
	r.st.stock[item.ID] = *item
	return nil
}

func (r *repo) GetStockItem(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error) {
	item, ok := r.st.stock[stockItemID]
	if !ok || item.PharmacyID != pharmacyID {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (r *repo) GetStockItemForUpdate(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error) {
	return r.GetStockItem(ctx, pharmacyID, stockItemID)
}

func (r *repo) UpdateStockLevels(ctx context.Context, item *domain.StockItem) error {
	current, ok := r.st.stock[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Quantity = item.Quantity
	current.LooseParts = item.LooseParts
	current.UpdatedAt = r.stamp()
	item.UpdatedAt = current.UpdatedAt
	r.st.stock[item.ID] = current
	return nil
}

func (r *repo) InsertSale(ctx context.Context, invoice *domain.SaleInvoice) error {
	invoice.ID = r.st.next("sale")
	invoice.CreatedAt = r.stamp()
	invoice.UpdatedAt = invoice.CreatedAt
	for i := range invoice.Items {
		invoice.Items[i].ID = r.st.next("sale_item")
		invoice.Items[i].SaleInvoiceID = invoice.ID
	}
	r.st.sales[invoice.ID] = copySale(*invoice)
	return nil
}

func (r *repo) GetSale(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error) {
	inv, ok := r.st.sales[saleID]
	if !ok || inv.PharmacyID != pharmacyID {
		return nil, store.ErrNotFound
	}
	inv = copySale(inv)
	return &inv, nil
}

func (r *repo) GetSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error) {
	return r.GetSale(ctx, pharmacyID, saleID)
}

func (r *repo) UpdateSaleSettlement(ctx context.Context, invoice *domain.SaleInvoice) error {
	current, ok := r.st.sales[invoice.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.TotalAmount = invoice.TotalAmount
	current.PaidAmount = invoice.PaidAmount
	current.RemainingAmount = invoice.RemainingAmount
	current.RefundedAmount = invoice.RefundedAmount
	current.Status = invoice.Status
	current.PaymentStatus = invoice.PaymentStatus
	current.RefundStatus = invoice.RefundStatus
	current.UpdatedAt = r.stamp()
	invoice.UpdatedAt = current.UpdatedAt
	r.st.sales[invoice.ID] = current
	return nil
}

func (r *repo) UpdateSaleItemRefunded(ctx context.Context, item *domain.SaleInvoiceItem) error {
	inv, ok := r.st.sales[item.SaleInvoiceID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range inv.Items {
		if inv.Items[i].ID == item.ID {
			inv.Items[i].RefundedQuantity = item.RefundedQuantity
			r.st.sales[inv.ID] = inv
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *repo) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.SaleInvoice, error) {
	var out []domain.SaleInvoice
	for _, inv := range r.st.sales {
		if inv.PharmacyID != filter.PharmacyID {
			continue
		}
		if filter.CustomerID != nil && (inv.CustomerID == nil || *inv.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.PaymentStatus != nil && inv.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		if !store.InRange(inv.InvoiceDate, filter.From, filter.To) {
			continue
		}
		out = append(out, copySale(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Page), nil
}

func (r *repo) InsertRefund(ctx context.Context, refund *domain.SaleRefund) error {
	refund.ID = r.st.next("refund")
	refund.CreatedAt = r.stamp()
	for i := range refund.Items {
		refund.Items[i].ID = r.st.next("refund_item")
		refund.Items[i].SaleRefundID = refund.ID
	}
	r.st.refunds[refund.ID] = copyRefund(*refund)
	return nil
}

func (r *repo) GetRefund(ctx context.Context, pharmacyID, refundID int64) (*domain.SaleRefund, error) {
	ref, ok := r.st.refunds[refundID]
	if !ok || ref.PharmacyID != pharmacyID {
		return nil, store.ErrNotFound
	}
	ref = copyRefund(ref)
	return &ref, nil
}

func (r *repo) GetRefundItemForUpdate(ctx context.Context, pharmacyID, refundItemID int64) (*domain.SaleRefundItem, error) {
	for _, ref := range r.st.refunds {
		if ref.PharmacyID != pharmacyID {
			continue
		}
		for _, item := range ref.Items {
			if item.ID == refundItemID {
				return &item, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) MarkRefundItemRestored(ctx context.Context, item *domain.SaleRefundItem) error {
	ref, ok := r.st.refunds[item.SaleRefundID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range ref.Items {
		if ref.Items[i].ID == item.ID {
			ref.Items[i].StockRestored = item.StockRestored
			ref.Items[i].RestoredAt = item.RestoredAt
			r.st.refunds[ref.ID] = ref
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *repo) ListRefunds(ctx context.Context, filter store.RefundFilter) ([]domain.SaleRefund, error) {
	var out []domain.SaleRefund
	for _, ref := range r.st.refunds {
		if ref.PharmacyID != filter.PharmacyID {
			continue
		}
		if filter.SaleInvoiceID != nil && ref.SaleInvoiceID != *filter.SaleInvoiceID {
			continue
		}
		if !store.InRange(ref.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, copyRefund(ref))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Page), nil
}

func (r *repo) InsertDebt(ctx context.Context, debt *domain.CustomerDebt) error {
	debt.ID = r.st.next("debt")
	debt.CreatedAt = r.stamp()
	debt.UpdatedAt = debt.CreatedAt
	r.st.debts[debt.ID] = *debt
	return nil
}

func (r *repo) GetDebt(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error) {
	debt, ok := r.st.debts[debtID]
	if !ok || debt.PharmacyID != pharmacyID {
		return nil, store.ErrNotFound
	}
	return &debt, nil
}

func (r *repo) GetDebtForUpdate(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error) {
	return r.GetDebt(ctx, pharmacyID, debtID)
}

func (r *repo) GetOpenDebtForSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.CustomerDebt, error) {
	var found *domain.CustomerDebt
	for _, debt := range r.st.debts {
		if debt.PharmacyID != pharmacyID || debt.SaleInvoiceID == nil || *debt.SaleInvoiceID != saleID || !debt.Status.Open() {
			continue
		}
		if found == nil || debt.ID < found.ID {
			d := debt
			found = &d
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (r *repo) UpdateDebt(ctx context.Context, debt *domain.CustomerDebt) error {
	if _, ok := r.st.debts[debt.ID]; !ok {
		return store.ErrNotFound
	}
	debt.UpdatedAt = r.stamp()
	r.st.debts[debt.ID] = *debt
	return nil
}

func (r *repo) ListDebts(ctx context.Context, filter store.DebtFilter) ([]domain.CustomerDebt, error) {
	var out []domain.CustomerDebt
	for _, debt := range r.st.debts {
		if debt.PharmacyID != filter.PharmacyID {
			continue
		}
		if filter.CustomerID != nil && (debt.CustomerID == nil || *debt.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.Status != nil && debt.Status != *filter.Status {
			continue
		}
		out = append(out, debt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Page), nil
}

func (r *repo) MarkOverdueDebts(ctx context.Context, pharmacyID int64, now time.Time) (int, error) {
	marked := 0
	for id, debt := range r.st.debts {
		if pharmacyID != 0 && debt.PharmacyID != pharmacyID {
			continue
		}
		if debt.Status != domain.DebtActive || !debt.DueDate.Before(now) {
			continue
		}
		debt.Status = domain.DebtOverdue
		debt.UpdatedAt = r.stamp()
		r.st.debts[id] = debt
		marked++
	}
	return marked, nil
}

func (r *repo) GetMoneyBox(ctx context.Context, pharmacyID int64) (*domain.MoneyBox, error) {
	box, ok := r.st.boxes[pharmacyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &box, nil
}

func (r *repo) EnsureMoneyBoxForUpdate(ctx context.Context, pharmacyID int64, currency domain.Currency) (*domain.MoneyBox, error) {
	if box, ok := r.st.boxes[pharmacyID]; ok {
		return &box, nil
	}
	now := r.stamp()
	box := domain.MoneyBox{
		ID:         r.st.next("money_box"),
		PharmacyID: pharmacyID,
		Currency:   currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.st.boxes[pharmacyID] = box
	return &box, nil
}

func (r *repo) UpdateMoneyBox(ctx context.Context, box *domain.MoneyBox) error {
	if _, ok := r.st.boxes[box.PharmacyID]; !ok {
		return store.ErrNotFound
	}
	box.UpdatedAt = r.stamp()
	r.st.boxes[box.PharmacyID] = *box
	return nil
}

func (r *repo) InsertMoneyBoxTransaction(ctx context.Context, txn *domain.MoneyBoxTransaction) error {
	txn.ID = r.st.next("money_box_tx")
	txn.CreatedAt = r.stamp()
	r.st.txns = append(r.st.txns, *txn)
	return nil
}

func (r *repo) LastMoneyBoxTransaction(ctx context.Context, moneyBoxID int64) (*domain.MoneyBoxTransaction, error) {
	for i := len(r.st.txns) - 1; i >= 0; i-- {
		if r.st.txns[i].MoneyBoxID == moneyBoxID {
			txn := r.st.txns[i]
			return &txn, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *repo) CountMoneyBoxTransactions(ctx context.Context, moneyBoxID int64) (int, error) {
	n := 0
	for _, txn := range r.st.txns {
		if txn.MoneyBoxID == moneyBoxID {
			n++
		}
	}
	return n, nil
}

func (r *repo) ListMoneyBoxTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.MoneyBoxTransaction, error) {
	var out []domain.MoneyBoxTransaction
	for _, txn := range r.st.txns {
		if txn.PharmacyID != filter.PharmacyID {
			continue
		}
		if filter.Type != nil && txn.Type != *filter.Type {
			continue
		}
		if !store.InRange(txn.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, txn)
	}
	if filter.All {
		return out, nil
	}
	return paginate(out, filter.Page), nil
}

func (r *repo) GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error) {
	var found *domain.ExchangeRate
	for _, rate := range r.st.rates {
		if rate.FromCurrency != from || rate.ToCurrency != to || !rate.IsActive || !rate.EffectiveAt(at) {
			continue
		}
		if found == nil || rate.ID > found.ID {
			rt := rate
			found = &rt
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (r *repo) SetActiveRate(ctx context.Context, rate *domain.ExchangeRate) error {
	for i := range r.st.rates {
		if r.st.rates[i].FromCurrency == rate.FromCurrency && r.st.rates[i].ToCurrency == rate.ToCurrency {
			r.st.rates[i].IsActive = false
		}
	}
	rate.ID = r.st.next("exchange_rate")
	rate.IsActive = true
	rate.CreatedAt = r.stamp()
	r.st.rates = append(r.st.rates, *rate)
	return nil
}

func paginate[T any](items []T, page store.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
