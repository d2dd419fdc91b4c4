package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/excel"
	"github.com/Wass76/Uqar-sub002/internal/service"
)

// Convert answers GET /exchange-rates/convert?amount=&from=&to=.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	from, err := domain.ParseCurrency(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := domain.ParseCurrency(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conversion, err := h.svc.Convert(r.Context(), amount, from, to)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversion)
}

func (h *Handler) SetExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req service.ExchangeRateInput
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	rate, err := h.svc.SetExchangeRate(r.Context(), actorFrom(r), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

// ImportExchangeRates accepts a multipart "file" field holding an .xlsx or
// .csv rate sheet.
func (h *Handler) ImportExchangeRates(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	defer file.Close()

	rows, err := excel.ParseExchangeRates(header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inputs := make([]service.ExchangeRateInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, service.ExchangeRateInput{
			FromCurrency:  row.FromCurrency,
			ToCurrency:    row.ToCurrency,
			Rate:          row.Rate,
			Source:        row.Source,
			EffectiveFrom: row.EffectiveFrom,
			EffectiveTo:   row.EffectiveTo,
		})
	}

	rates, err := h.svc.ImportExchangeRates(r.Context(), actorFrom(r), inputs)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file":     header.Filename,
		"imported": len(rates),
		"items":    rates,
	})
}
