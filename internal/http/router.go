package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Wass76/Uqar-sub002/internal/metrics"
)

func NewRouter(handler *Handler, m *metrics.Metrics, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger(handler.logger, m))
	r.Use(Recoverer(handler.logger))
	r.Use(Timeout)
	r.Use(CORS(allowedOrigins))

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Actor)

		r.Post("/products", handler.RegisterProduct)
		r.Post("/stock-items", handler.ReceiveStock)
		r.Post("/stock-items/import", handler.ImportStock)
		r.Get("/stock-items/{id}", handler.GetStockItem)

		r.Post("/sales", handler.CreateSale)
		r.Get("/sales", handler.ListSales)
		r.Get("/sales/{id}", handler.GetSale)
		r.Post("/sales/{id}/cancel", handler.CancelSale)
		r.Post("/sales/{id}/refunds", handler.CreateRefund)
		r.Get("/sales/{id}/refunds", handler.ListSaleRefunds)

		r.Get("/refunds", handler.ListRefunds)
		r.Get("/refunds/{id}", handler.GetRefund)
		r.Post("/refund-items/{id}/restore-stock", handler.RestoreRefundLineStock)

		r.Get("/debts", handler.ListDebts)
		r.Get("/debts/summary", handler.CustomerDebtSummary)
		r.Get("/debts/{id}", handler.GetDebt)
		r.Post("/debts/{id}/payments", handler.ApplyDebtPayment)
		r.Post("/debts/overdue-sweep", handler.MarkOverdueDebts)

		r.Post("/money-box", handler.OpenMoneyBox)
		r.Get("/money-box", handler.MoneyBox)
		r.Get("/money-box/transactions", handler.ListTransactions)
		r.Post("/money-box/deposits", handler.Deposit)
		r.Post("/money-box/withdrawals", handler.Withdraw)
		r.Get("/money-box/reconcile", handler.Reconcile)
		r.Get("/money-box/statement.xlsx", handler.ExportStatement)

		r.Get("/exchange-rates/convert", handler.Convert)
		r.Post("/exchange-rates", handler.SetExchangeRate)
		r.Post("/exchange-rates/import", handler.ImportExchangeRates)
	})

	return r
}
