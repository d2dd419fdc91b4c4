package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/service"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type openMoneyBoxRequest struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (h *Handler) OpenMoneyBox(w http.ResponseWriter, r *http.Request) {
	var req openMoneyBoxRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	box, err := h.svc.OpenMoneyBox(r.Context(), actorFrom(r), req.InitialBalance)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

func (h *Handler) MoneyBox(w http.ResponseWriter, r *http.Request) {
	box, err := h.svc.MoneyBox(r.Context(), actorFrom(r))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
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
	filter := store.TransactionFilter{From: from, To: to, Page: page}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		typ, err := domain.ParseMoneyBoxTransactionType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Type = &typ
	}

	txns, err := h.svc.ListTransactions(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": txns, "count": len(txns)})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveCash(w, r, h.svc.Deposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveCash(w, r, h.svc.Withdraw)
}

func (h *Handler) moveCash(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, actor domain.Actor, in service.CashMovementInput) (*domain.MoneyBoxTransaction, error)) {
	var req service.CashMovementInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	txn, err := move(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Reconcile(r.Context(), actorFrom(r))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := actorFrom(r)
	var buf bytes.Buffer
	if err := h.svc.ExportStatement(r.Context(), actor, from, to, &buf); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeAttachment(w, xlsxContentType, fmt.Sprintf("money-box-%d.xlsx", actor.PharmacyID), buf.Bytes())
}
