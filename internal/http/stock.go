package http

import (
	"net/http"

	"github.com/Wass76/Uqar-sub002/internal/excel"
	"github.com/Wass76/Uqar-sub002/internal/service"
)

func (h *Handler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	product, err := h.svc.RegisterProduct(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req service.StockItemInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	item, err := h.svc.ReceiveStock(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	item, err := h.svc.GetStockItem(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ImportStock receives a goods-received sheet uploaded as multipart "file".
func (h *Handler) ImportStock(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	defer file.Close()

	rows, err := excel.ParseStockRows(header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inputs := make([]service.StockItemInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, service.StockItemInput{
			ProductID:     row.ProductID,
			ProductType:   row.ProductType,
			Quantity:      row.Quantity,
			LooseParts:    row.LooseParts,
			PurchasePrice: row.PurchasePrice,
			BatchNumber:   row.BatchNumber,
			ExpiryDate:    row.ExpiryDate,
		})
	}

	items, err := h.svc.ImportStock(r.Context(), actorFrom(r), inputs)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file":     header.Filename,
		"imported": len(items),
		"items":    items,
	})
}
