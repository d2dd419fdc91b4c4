package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// Price sources recorded on invoice lines.
const (
	PriceExplicit = "EXPLICIT"
	PriceCatalog  = "CATALOG"
	PricePurchase = "PURCHASE"
)

type SaleItemInput struct {
	StockItemID int64 `json:"stock_item_id" validate:"required,gt=0"`
	Quantity    int   `json:"quantity" validate:"gte=0"`
	// Parts sells loose parts of an opened box instead of whole boxes.
	Parts int `json:"parts" validate:"gte=0"`
	// UnitPrice overrides the catalog price, in base currency. For a part
	// sale it is the price of one part.
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type CreateSaleInput struct {
	CustomerID    *int64               `json:"customer_id,omitempty"`
	Currency      domain.Currency      `json:"currency"`
	PaymentType   domain.PaymentType   `json:"payment_type" validate:"required"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	DiscountType  *domain.DiscountType `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	PaidAmount    *decimal.Decimal     `json:"paid_amount,omitempty"`
	DebtDueDate   *time.Time           `json:"debt_due_date,omitempty"`
	Items         []SaleItemInput      `json:"items" validate:"required,min=1,dive"`
}

func (s *Service) normalizeSale(in *CreateSaleInput) error {
	if len(in.Items) == 0 {
		return apperr.Validation("sale must contain at least one item")
	}
	if in.Currency == "" {
		in.Currency = s.opts.BaseCurrency
	}
	if !in.Currency.Valid() {
		return apperr.Validationf("unsupported currency %q", in.Currency)
	}
	if !in.PaymentType.Valid() {
		return apperr.Validationf("invalid payment type %q", in.PaymentType)
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCash
	}
	if !in.PaymentMethod.Valid() {
		return apperr.Validationf("invalid payment method %q", in.PaymentMethod)
	}
	if in.CustomerID != nil && *in.CustomerID <= 0 {
		return apperr.Validation("customer id must be positive")
	}
	if in.DiscountType != nil && !in.DiscountType.Valid() {
		return apperr.Validationf("invalid discount type %q", *in.DiscountType)
	}
	if in.DiscountValue.IsNegative() {
		return apperr.Validation("discount value cannot be negative")
	}
	if in.DiscountType == nil && !in.DiscountValue.IsZero() {
		return apperr.Validation("discount value requires a discount type")
	}
	if in.PaidAmount != nil && in.PaidAmount.IsNegative() {
		return apperr.Validation("paid amount cannot be negative")
	}
	for i, line := range in.Items {
		if line.StockItemID <= 0 {
			return apperr.Validationf("items[%d]: stock item id is required", i)
		}
		if line.Quantity < 0 || line.Parts < 0 {
			return apperr.Validationf("items[%d]: quantity cannot be negative", i)
		}
		if (line.Quantity > 0) == (line.Parts > 0) {
			return apperr.Validationf("items[%d]: exactly one of quantity or parts must be positive", i)
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return apperr.Validationf("items[%d]: unit price cannot be negative", i)
		}
	}
	return nil
}

// CreateSale prices, persists and settles a sale in one unit of work: stock
// is decremented, a debt opened for any unpaid remainder and the paid amount
// credited to the money box.
func (s *Service) CreateSale(ctx context.Context, actor domain.Actor, in CreateSaleInput) (_ *domain.SaleInvoice, err error) {
	defer s.observe("create_sale", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.normalizeSale(&in); err != nil {
		return nil, err
	}

	priceQuote, err := s.rates.Quote(ctx, s.opts.BaseCurrency, in.Currency)
	if err != nil {
		return nil, err
	}
	settleQuote, err := s.rates.Quote(ctx, in.Currency, s.opts.BaseCurrency)
	if err != nil {
		return nil, err
	}

	var invoice *domain.SaleInvoice
	err = s.tx(ctx, "create sale", func(ctx context.Context, repo store.Repository) error {
		now := s.now().UTC()

		stock, err := lockStock(ctx, repo, actor.PharmacyID, in.Items)
		if err != nil {
			return err
		}

		inv := &domain.SaleInvoice{
			PharmacyID:    actor.PharmacyID,
			CustomerID:    in.CustomerID,
			InvoiceNumber: documentNumber("INV", now),
			InvoiceDate:   now,
			Currency:      in.Currency,
			ExchangeRate:  settleQuote.Rate,
			RateSource:    string(settleQuote.Source),
			RateTimestamp: settleQuote.Timestamp,
			RateProvider:  settleQuote.Provider,
			PaymentType:   in.PaymentType,
			PaymentMethod: in.PaymentMethod,
			DiscountType:  in.DiscountType,
			DiscountValue: in.DiscountValue,
			Status:        domain.InvoiceSold,
			RefundStatus:  domain.RefundNone,
			Audit:         actor.Audit(),
		}

		if settleQuote.RateID != 0 {
			rateID := settleQuote.RateID
			inv.ExchangeRateID = &rateID
		}

		gross := decimal.Zero
		for _, line := range in.Items {
			item := stock[line.StockItemID]
			product, err := repo.GetProduct(ctx, item.ProductID, item.ProductType)
			if err != nil {
				return notFound(err, "product", item.ProductID)
			}
			saleItem, err := s.priceLine(line, item, product, priceQuote)
			if err != nil {
				return err
			}
			if line.Parts > 0 {
				opened, err := takeParts(item, line.Parts, product.PartsPerBox)
				if err != nil {
					return err
				}
				saleItem.BoxesOpened = opened
			} else if err := decrementBoxes(item, line.Quantity); err != nil {
				return err
			}
			gross = gross.Add(saleItem.Subtotal)
			inv.Items = append(inv.Items, saleItem)
		}
		for _, id := range sortedStockIDs(in.Items) {
			if err := repo.UpdateStockLevels(ctx, stock[id]); err != nil {
				return err
			}
		}

		inv.GrossAmount = gross
		inv.DiscountAmount = discountAmount(gross, in.DiscountType, in.DiscountValue)
		inv.TotalAmount = gross.Sub(inv.DiscountAmount)

		paid := inv.TotalAmount
		if in.PaymentType == domain.PaymentTypeCredit {
			paid = decimal.Zero
		}
		if in.PaidAmount != nil {
			paid = domain.RoundMoney(*in.PaidAmount)
		}
		inv.PaidAmount = domain.MinMoney(paid, inv.TotalAmount)
		inv.RemainingAmount = inv.TotalAmount.Sub(inv.PaidAmount)
		inv.RefundedAmount = decimal.Zero
		inv.ApplyPaymentStatus()

		if inv.RemainingAmount.IsPositive() {
			due, err := s.debtDueDate(in, now)
			if err != nil {
				return err
			}
			if inv.CustomerID == nil {
				return apperr.Validation("a registered customer is required to leave an outstanding balance")
			}
			inv.DebtDueDate = &due
		}

		if err := repo.InsertSale(ctx, inv); err != nil {
			return err
		}

		if inv.RemainingAmount.IsPositive() {
			if err := s.openSaleDebt(ctx, repo, actor, inv); err != nil {
				return err
			}
		}
		if inv.PaidAmount.IsPositive() {
			_, err := s.appendCash(ctx, repo, actor, cashEntry{
				Type:             domain.TxSalePayment,
				Amount:           s.toBase(inv, inv.PaidAmount),
				OriginalCurrency: inv.Currency,
				OriginalAmount:   inv.PaidAmount,
				Rate:             inv.ExchangeRate,
				ReferenceID:      inv.ID,
				ReferenceType:    domain.RefSaleInvoice,
				Description:      "payment for " + inv.InvoiceNumber,
			})
			if err != nil {
				return err
			}
		}

		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSale(string(invoice.PaymentType))
	if invoice.PaidAmount.IsPositive() {
		s.metrics.RecordMoneyBoxTransaction(string(domain.TxSalePayment))
	}
	s.logger.Audit(ctx, "sale.created", "sale_invoice", invoice.ID,
		"invoiceNumber", invoice.InvoiceNumber,
		"total", invoice.TotalAmount.StringFixed(domain.MoneyScale),
		"paid", invoice.PaidAmount.StringFixed(domain.MoneyScale),
		"currency", invoice.Currency,
		"userId", actor.UserID,
	)
	return invoice, nil
}

func (s *Service) debtDueDate(in CreateSaleInput, now time.Time) (time.Time, error) {
	if in.DebtDueDate == nil {
		if in.PaymentType == domain.PaymentTypeCredit {
			return time.Time{}, apperr.MissingDueDate()
		}
		return now.Add(s.opts.DefaultDebtTerm), nil
	}
	due := in.DebtDueDate.UTC()
	if due.Before(now.Truncate(24 * time.Hour)) {
		return time.Time{}, apperr.Validation("debt due date cannot be in the past")
	}
	return due, nil
}

// lockStock loads every referenced stock line for update in ascending id
// order so concurrent sales on overlapping lines cannot deadlock.
func lockStock(ctx context.Context, repo store.Repository, pharmacyID int64, lines []SaleItemInput) (map[int64]*domain.StockItem, error) {
	stock := make(map[int64]*domain.StockItem, len(lines))
	for _, id := range sortedStockIDs(lines) {
		item, err := repo.GetStockItemForUpdate(ctx, pharmacyID, id)
		if err != nil {
			return nil, notFound(err, "stock item", id)
		}
		stock[id] = item
	}
	return stock, nil
}

func sortedStockIDs(lines []SaleItemInput) []int64 {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !seen[line.StockItemID] {
			seen[line.StockItemID] = true
			ids = append(ids, line.StockItemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// priceLine resolves the unit price in base currency (explicit, catalog,
// then purchase price) and converts it into the invoice currency.
func (s *Service) priceLine(line SaleItemInput, item *domain.StockItem, product *domain.Product, quote currency.Quote) (domain.SaleInvoiceItem, error) {
	out := domain.SaleInvoiceItem{
		StockItemID: item.ID,
		ProductID:   item.ProductID,
		ProductType: item.ProductType,
		ProductName: product.Name,
	}

	boxPrice, source := product.SellingPrice, PriceCatalog
	if !boxPrice.IsPositive() {
		boxPrice, source = item.PurchasePrice, PricePurchase
	}

	var price decimal.Decimal
	units := line.Quantity
	if line.Parts > 0 {
		if product.PartsPerBox <= 1 {
			return out, apperr.Validationf("product %d is not sold in parts", product.ID)
		}
		if line.UnitPrice != nil {
			price, source = *line.UnitPrice, PriceExplicit
		} else {
			price = boxPrice.Div(decimal.NewFromInt(int64(product.PartsPerBox))).Mul(s.opts.PartialSaleMarkup)
		}
		parts := line.Parts
		out.PartsSold = &parts
		units = parts
	} else {
		price = boxPrice
		if line.UnitPrice != nil {
			price, source = *line.UnitPrice, PriceExplicit
		}
		out.Quantity = line.Quantity
	}

	out.UnitPrice = domain.RoundMoney(quote.Apply(price))
	out.PriceSource = source
	if line.Parts > 0 {
		// Priced from the unrounded per-part price; UnitPrice is display only.
		out.Subtotal = domain.RoundMoney(quote.Apply(price.Mul(decimal.NewFromInt(int64(units)))))
	} else {
		out.Subtotal = domain.RoundMoney(out.UnitPrice.Mul(decimal.NewFromInt(int64(units))))
	}
	return out, nil
}

func discountAmount(gross decimal.Decimal, typ *domain.DiscountType, value decimal.Decimal) decimal.Decimal {
	if typ == nil || !value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch *typ {
	case domain.DiscountPercentage:
		discount = domain.Percent(gross, value)
	case domain.DiscountFixed:
		discount = domain.RoundMoney(value)
	}
	return domain.MinMoney(discount, gross)
}

func (s *Service) GetSale(ctx context.Context, actor domain.Actor, id int64) (*domain.SaleInvoice, error) {
	var inv *domain.SaleInvoice
	err := s.view(ctx, "get sale", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetSale(ctx, actor.PharmacyID, id)
		if err != nil {
			return notFound(err, "sale", id)
		}
		inv = found
		return nil
	})
	return inv, err
}

func (s *Service) ListSales(ctx context.Context, actor domain.Actor, filter store.SaleFilter) ([]domain.SaleInvoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter.PharmacyID = actor.PharmacyID
	var out []domain.SaleInvoice
	err := s.view(ctx, "list sales", func(ctx context.Context, repo store.Repository) error {
		sales, err := repo.ListSales(ctx, filter)
		out = sales
		return err
	})
	return out, err
}

// CancelSale voids an unrefunded sale and puts its stock back. Payments and
// debts are left to the refund flow.
func (s *Service) CancelSale(ctx context.Context, actor domain.Actor, id int64) (_ *domain.SaleInvoice, err error) {
	defer s.observe("cancel_sale", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var inv *domain.SaleInvoice
	err = s.tx(ctx, "cancel sale", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetSaleForUpdate(ctx, actor.PharmacyID, id)
		if err != nil {
			return notFound(err, "sale", id)
		}
		switch {
		case found.Status == domain.InvoiceCancelled:
			return apperr.Conflict(apperr.CodeSaleAlreadyCancelled, "sale is already cancelled")
		case found.Status != domain.InvoiceSold:
			return apperr.Conflict(apperr.CodeSaleNotCancellable, "only sold invoices can be cancelled")
		case found.RefundStatus != domain.RefundNone:
			return apperr.Conflict(apperr.CodeSaleNotCancellable, "sale has refunds and cannot be cancelled")
		}

		lines := make([]domain.SaleInvoiceItem, len(found.Items))
		copy(lines, found.Items)
		sort.Slice(lines, func(i, j int) bool { return lines[i].StockItemID < lines[j].StockItemID })
		for _, line := range lines {
			item, err := repo.GetStockItemForUpdate(ctx, actor.PharmacyID, line.StockItemID)
			if err != nil {
				return notFound(err, "stock item", line.StockItemID)
			}
			if line.IsPartial() {
				product, err := repo.GetProduct(ctx, item.ProductID, item.ProductType)
				if err != nil {
					return notFound(err, "product", item.ProductID)
				}
				if err := returnParts(item, *line.PartsSold, product.PartsPerBox); err != nil {
					return err
				}
			} else if err := restoreBoxes(item, line.Quantity); err != nil {
				return err
			}
			if err := repo.UpdateStockLevels(ctx, item); err != nil {
				return err
			}
		}

		found.Status = domain.InvoiceCancelled
		if err := repo.UpdateSaleSettlement(ctx, found); err != nil {
			return err
		}
		inv = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "sale.cancelled", "sale_invoice", inv.ID, "userId", actor.UserID)
	return inv, nil
}
