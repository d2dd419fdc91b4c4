package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// Stock is tracked as sealed boxes (Quantity) plus loose parts left over
// from opened boxes. A box-level sale draws only on sealed boxes; a part
// sale draws on loose parts first and opens boxes as needed.

func decrementBoxes(item *domain.StockItem, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	if item.Quantity < qty {
		return apperr.InsufficientStock(item.ID, qty, item.Quantity)
	}
	item.Quantity -= qty
	return nil
}

func restoreBoxes(item *domain.StockItem, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	item.Quantity += qty
	return nil
}

func availableParts(item *domain.StockItem, partsPerBox int) int {
	return item.Quantity*partsPerBox + item.LooseParts
}

// takeParts removes parts from the item and returns how many boxes it opened.
func takeParts(item *domain.StockItem, parts, partsPerBox int) (int, error) {
	if parts <= 0 {
		return 0, apperr.Validation("parts must be positive")
	}
	if partsPerBox <= 1 {
		return 0, apperr.Validationf("product %d is not sold in parts", item.ProductID)
	}
	if available := availableParts(item, partsPerBox); available < parts {
		return 0, apperr.InsufficientStock(item.ID, parts, available)
	}
	if parts <= item.LooseParts {
		item.LooseParts -= parts
		return 0, nil
	}
	short := parts - item.LooseParts
	opened := (short + partsPerBox - 1) / partsPerBox
	item.Quantity -= opened
	item.LooseParts = opened*partsPerBox - short
	return opened, nil
}

// returnParts puts parts back, folding every complete box into Quantity.
func returnParts(item *domain.StockItem, parts, partsPerBox int) error {
	if parts <= 0 {
		return apperr.Validation("parts must be positive")
	}
	if partsPerBox <= 1 {
		return apperr.Validationf("product %d is not sold in parts", item.ProductID)
	}
	total := item.LooseParts + parts
	item.Quantity += total / partsPerBox
	item.LooseParts = total % partsPerBox
	return nil
}

type ProductInput struct {
	ID           int64              `json:"id" validate:"required,gt=0"`
	Type         domain.ProductType `json:"type" validate:"required"`
	Name         string             `json:"name" validate:"required"`
	SellingPrice decimal.Decimal    `json:"selling_price"`
	PartsPerBox  int                `json:"parts_per_box" validate:"gte=0"`
}

// RegisterProduct records the catalog data the engine prices against.
func (s *Service) RegisterProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if !in.Type.Valid() {
		return nil, apperr.Validationf("invalid product type %q", in.Type)
	}
	if in.SellingPrice.IsNegative() {
		return nil, apperr.Validation("selling price cannot be negative")
	}
	product := &domain.Product{
		ID:           in.ID,
		Type:         in.Type,
		Name:         in.Name,
		SellingPrice: domain.RoundMoney(in.SellingPrice),
		PartsPerBox:  in.PartsPerBox,
	}
	err := s.tx(ctx, "register product", func(ctx context.Context, repo store.Repository) error {
		return repo.UpsertProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

type StockItemInput struct {
	ProductID     int64              `json:"product_id" validate:"required,gt=0"`
	ProductType   domain.ProductType `json:"product_type" validate:"required"`
	Quantity      int                `json:"quantity" validate:"gte=0"`
	LooseParts    int                `json:"loose_parts" validate:"gte=0"`
	PurchasePrice decimal.Decimal    `json:"purchase_price"`
	BatchNumber   string             `json:"batch_number"`
	ExpiryDate    *time.Time         `json:"expiry_date"`
}

func newStockItem(pharmacyID int64, in StockItemInput) (*domain.StockItem, error) {
	if !in.ProductType.Valid() {
		return nil, apperr.Validationf("invalid product type %q", in.ProductType)
	}
	if in.Quantity < 0 || in.LooseParts < 0 || in.PurchasePrice.IsNegative() {
		return nil, apperr.Validation("stock quantities and purchase price cannot be negative")
	}
	return &domain.StockItem{
		PharmacyID:    pharmacyID,
		ProductID:     in.ProductID,
		ProductType:   in.ProductType,
		Quantity:      in.Quantity,
		LooseParts:    in.LooseParts,
		PurchasePrice: domain.RoundMoney(in.PurchasePrice),
		BatchNumber:   in.BatchNumber,
		ExpiryDate:    in.ExpiryDate,
	}, nil
}

func insertStock(ctx context.Context, repo store.Repository, item *domain.StockItem) error {
	if _, err := repo.GetProduct(ctx, item.ProductID, item.ProductType); err != nil {
		return notFound(err, "product", item.ProductID)
	}
	return repo.InsertStockItem(ctx, item)
}

// ReceiveStock creates a stock line for the actor's pharmacy.
func (s *Service) ReceiveStock(ctx context.Context, actor domain.Actor, in StockItemInput) (*domain.StockItem, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	item, err := newStockItem(actor.PharmacyID, in)
	if err != nil {
		return nil, err
	}
	err = s.tx(ctx, "receive stock", func(ctx context.Context, repo store.Repository) error {
		return insertStock(ctx, repo, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ImportStock receives a batch of stock lines in one unit of work. A single
// invalid line or unknown product rejects the whole batch.
func (s *Service) ImportStock(ctx context.Context, actor domain.Actor, in []StockItemInput) ([]domain.StockItem, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, apperr.Validation("no stock lines to import")
	}
	items := make([]*domain.StockItem, 0, len(in))
	for i, line := range in {
		item, err := newStockItem(actor.PharmacyID, line)
		if err != nil {
			return nil, apperr.Validationf("line %d: %s", i+1, apperr.From(err).Message)
		}
		items = append(items, item)
	}
	err := s.tx(ctx, "import stock", func(ctx context.Context, repo store.Repository) error {
		for _, item := range items {
			if err := insertStock(ctx, repo, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.StockItem, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	s.logger.WithContext(ctx).Info("stock imported", "pharmacyId", actor.PharmacyID, "lines", len(out))
	return out, nil
}

func (s *Service) GetStockItem(ctx context.Context, actor domain.Actor, id int64) (*domain.StockItem, error) {
	var item *domain.StockItem
	err := s.view(ctx, "get stock item", func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetStockItem(ctx, actor.PharmacyID, id)
		if err != nil {
			return notFound(err, "stock item", id)
		}
		item = found
		return nil
	})
	return item, err
}

// RestoreRefundLineStock returns a refunded line's units to stock. It is
// idempotent: a line already restored is left untouched and reports false.
func (s *Service) RestoreRefundLineStock(ctx context.Context, actor domain.Actor, refundItemID int64) (restored bool, err error) {
	defer s.observe("restore_refund_stock", time.Now(), &err)
	if err := requireActor(actor); err != nil {
		return false, err
	}
	err = s.tx(ctx, "restore refund stock", func(ctx context.Context, repo store.Repository) error {
		item, err := repo.GetRefundItemForUpdate(ctx, actor.PharmacyID, refundItemID)
		if err != nil {
			return notFound(err, "refund item", refundItemID)
		}
		restored, err = s.restoreRefundLine(ctx, repo, actor.PharmacyID, item)
		return err
	})
	return restored, err
}

func (s *Service) restoreRefundLine(ctx context.Context, repo store.Repository, pharmacyID int64, item *domain.SaleRefundItem) (bool, error) {
	if item.StockRestored {
		return false, nil
	}
	stock, err := repo.GetStockItemForUpdate(ctx, pharmacyID, item.StockItemID)
	if err != nil {
		return false, notFound(err, "stock item", item.StockItemID)
	}
	if item.Partial {
		product, err := repo.GetProduct(ctx, stock.ProductID, stock.ProductType)
		if err != nil {
			return false, notFound(err, "product", stock.ProductID)
		}
		if err := returnParts(stock, item.Quantity, product.PartsPerBox); err != nil {
			return false, err
		}
	} else if err := restoreBoxes(stock, item.Quantity); err != nil {
		return false, err
	}
	if err := repo.UpdateStockLevels(ctx, stock); err != nil {
		return false, err
	}
	now := s.now().UTC()
	item.StockRestored = true
	item.RestoredAt = &now
	if err := repo.MarkRefundItemRestored(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}
