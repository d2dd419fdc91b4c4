package http

import (
	"net/http"
	"strings"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/service"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	customerID, err := parseOptionalInt64(query.Get("customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.DebtFilter{CustomerID: customerID, Page: page}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseDebtStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}

	debts, err := h.svc.ListDebts(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": debts, "count": len(debts)})
}

func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	debt, err := h.svc.GetDebt(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (h *Handler) CustomerDebtSummary(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseID(r.URL.Query().Get("customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	summary, err := h.svc.CustomerDebtSummary(r.Context(), actorFrom(r), customerID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ApplyDebtPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	var req service.DebtPaymentInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	debt, err := h.svc.ApplyDebtPayment(r.Context(), actorFrom(r), id, req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// MarkOverdueDebts runs the overdue sweep for the caller's pharmacy.
func (h *Handler) MarkOverdueDebts(w http.ResponseWriter, r *http.Request) {
	marked, err := h.svc.MarkOverdueDebts(r.Context(), actorFrom(r).PharmacyID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}
