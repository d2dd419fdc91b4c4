package http

import (
	"net/http"
	"strings"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/service"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSaleInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	invoice, err := h.svc.CreateSale(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	customerID, err := parseOptionalInt64(query.Get("customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.SaleFilter{CustomerID: customerID, From: from, To: to, Page: page}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseInvoiceStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := domain.ParsePaymentStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.PaymentStatus = &status
	}

	sales, err := h.svc.ListSales(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sales, "count": len(sales)})
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	invoice, err := h.svc.GetSale(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	invoice, err := h.svc.CancelSale(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	saleID, ok := urlID(w, r)
	if !ok {
		return
	}
	var req service.RefundInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	refund, err := h.svc.CreateRefund(r.Context(), actorFrom(r), saleID, req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, refund)
}

func (h *Handler) ListSaleRefunds(w http.ResponseWriter, r *http.Request) {
	saleID, ok := urlID(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refunds, err := h.svc.ListRefunds(r.Context(), actorFrom(r), store.RefundFilter{SaleInvoiceID: &saleID, Page: page})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": refunds, "count": len(refunds)})
}

func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refunds, err := h.svc.ListRefunds(r.Context(), actorFrom(r), store.RefundFilter{From: from, To: to, Page: page})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": refunds, "count": len(refunds)})
}

func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	refund, err := h.svc.GetRefund(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

func (h *Handler) RestoreRefundLineStock(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	restored, err := h.svc.RestoreRefundLineStock(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refund_item_id": id, "restored": restored})
}
