package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
)

func TestTakeAndReturnPartsConserveUnits(t *testing.T) {
	cases := []struct {
		name           string
		boxes, loose   int
		parts          int
		wantOpened     int
		wantBoxes      int
		wantLooseAfter int
	}{
		{"from loose only", 3, 6, 4, 0, 3, 2},
		{"exact loose", 3, 6, 6, 0, 3, 0},
		{"opens one box", 3, 2, 5, 1, 2, 7},
		{"opens several", 3, 0, 25, 3, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := &domain.StockItem{Quantity: tc.boxes, LooseParts: tc.loose}
			before := availableParts(item, 10)

			opened, err := takeParts(item, tc.parts, 10)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOpened, opened)
			assert.Equal(t, tc.wantBoxes, item.Quantity)
			assert.Equal(t, tc.wantLooseAfter, item.LooseParts)
			assert.Equal(t, before-tc.parts, availableParts(item, 10))

			require.NoError(t, returnParts(item, tc.parts, 10))
			assert.Equal(t, before, availableParts(item, 10))
			assert.Less(t, item.LooseParts, 10)
		})
	}
}

func TestTakePartsRejectsShortStock(t *testing.T) {
	item := &domain.StockItem{ID: 4, Quantity: 1, LooseParts: 3}
	_, err := takeParts(item, 14, 10)
	assertCode(t, err, apperr.CodeInsufficientStock)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, 3, item.LooseParts)
}

func TestDecrementBoxes(t *testing.T) {
	item := &domain.StockItem{ID: 1, Quantity: 2}
	assertCode(t, decrementBoxes(item, 3), apperr.CodeInsufficientStock)
	require.NoError(t, decrementBoxes(item, 2))
	assert.Zero(t, item.Quantity)
	assertCode(t, decrementBoxes(item, 0), apperr.CodeValidation)
}

func TestReceiveStockNeedsKnownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReceiveStock(f.ctx, f.actor, StockItemInput{
		ProductID:   42,
		ProductType: domain.ProductPharmacy,
		Quantity:    1,
	})
	assertCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.ReceiveStock(f.ctx, f.actor, StockItemInput{
		ProductID:   42,
		ProductType: "RETAIL",
		Quantity:    1,
	})
	assertCode(t, err, apperr.CodeValidation)

	item := f.stocked(t, 42, "100", 5, 3)
	assert.Equal(t, f.actor.PharmacyID, item.PharmacyID)
	_, err = f.svc.GetStockItem(f.ctx, domain.Actor{PharmacyID: 2}, item.ID)
	assertCode(t, err, apperr.CodeNotFound)
}

func TestImportStockIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterProduct(f.ctx, ProductInput{
		ID: 7, Type: domain.ProductPharmacy, Name: "amoxicillin", SellingPrice: money("900"), PartsPerBox: 12,
	})
	require.NoError(t, err)

	lines := []StockItemInput{
		{ProductID: 7, ProductType: domain.ProductPharmacy, Quantity: 4, PurchasePrice: money("600")},
		{ProductID: 8, ProductType: domain.ProductPharmacy, Quantity: 1},
	}
	_, err = f.svc.ImportStock(f.ctx, f.actor, lines)
	assertCode(t, err, apperr.CodeNotFound)
	_, err = f.svc.GetStockItem(f.ctx, f.actor, 1)
	assertCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.ImportStock(f.ctx, f.actor, []StockItemInput{{ProductID: 7, ProductType: domain.ProductPharmacy, Quantity: -1}})
	assertCode(t, err, apperr.CodeValidation)
	_, err = f.svc.ImportStock(f.ctx, f.actor, nil)
	assertCode(t, err, apperr.CodeValidation)

	items, err := f.svc.ImportStock(f.ctx, f.actor, lines[:1])
	require.NoError(t, err)
	require.Len(t, items, 1)
	boxes, loose := f.stockLevels(t, items[0].ID)
	assert.Equal(t, 4, boxes)
	assert.Zero(t, loose)
	assertMoney(t, "600", items[0].PurchasePrice)
}
