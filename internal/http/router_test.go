package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
	"github.com/Wass76/Uqar-sub002/internal/repository/memory"
	"github.com/Wass76/Uqar-sub002/internal/service"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	st := memory.New()
	m := metrics.New()
	svc := service.New(st, currency.NewConverter(currency.StoreRates{Store: st}), service.DefaultOptions(), logging.Nop(), m)
	server := httptest.NewServer(NewRouter(NewHandler(svc, logging.Nop()), m, nil))
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server}
}

func (c *apiClient) request(method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	c.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

var cashier = map[string]string{
	headerPharmacyID: "1",
	headerUserID:     "7",
	headerUsername:   "cashier",
	headerSessionID:  "s-1",
}

func (c *apiClient) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	return c.request(method, path, body, cashier)
}

func (c *apiClient) stock(productID int, price string, partsPerBox, qty int) int {
	c.t.Helper()
	resp, _ := c.do(http.MethodPost, "/api/v1/products", map[string]any{
		"id": productID, "type": "PHARMACY", "name": "ibuprofen", "selling_price": price, "parts_per_box": partsPerBox,
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	resp, item := c.do(http.MethodPost, "/api/v1/stock-items", map[string]any{
		"product_id": productID, "product_type": "PHARMACY", "quantity": qty, "purchase_price": "300",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	return int(item["id"].(float64))
}

func TestHealthAndMetrics(t *testing.T) {
	api := newAPI(t)

	resp, body := api.request(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	resp, _ = api.request(http.MethodGet, "/healthz", nil, map[string]string{headerRequestID: "req-42"})
	assert.Equal(t, "req-42", resp.Header.Get(headerRequestID))

	req, err := http.NewRequest(http.MethodGet, api.server.URL+"/metrics", nil)
	require.NoError(t, err)
	metricsResp, err := api.server.Client().Do(req)
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(metricsResp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	assert.Contains(t, buf.String(), `settlement_http_requests_total{method="GET",path="/healthz",status="200"} 2`)
}

func TestAPIRequiresActorHeaders(t *testing.T) {
	api := newAPI(t)

	resp, body := api.request(http.MethodGet, "/api/v1/sales", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], headerPharmacyID)

	resp, body = api.request(http.MethodGet, "/api/v1/sales", nil, map[string]string{headerPharmacyID: "1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], headerUserID)
}

func TestCashSaleRefundAndStatementOverHTTP(t *testing.T) {
	api := newAPI(t)
	stockID := api.stock(11, "1500", 10, 4)

	resp, sale := api.do(http.MethodPost, "/api/v1/sales", map[string]any{
		"payment_type":   "CASH",
		"payment_method": "CASH",
		"items":          []map[string]any{{"stock_item_id": stockID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, sale)
	saleID := int(sale["id"].(float64))
	assert.Equal(t, "3000", sale["total_amount"])
	assert.Equal(t, "FULLY_PAID", sale["payment_status"])
	items := sale["items"].([]any)
	itemID := int(items[0].(map[string]any)["id"].(float64))

	resp, got := api.do(http.MethodGet, fmt.Sprintf("/api/v1/sales/%d", saleID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sale["invoice_number"], got["invoice_number"])

	resp, list := api.do(http.MethodGet, "/api/v1/sales?status=sold&payment_status=FULLY_PAID", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, list["count"])

	resp, refund := api.do(http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/refunds", saleID), map[string]any{
		"reason": "wrong item",
		"items":  []map[string]any{{"item_id": itemID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, refund)
	assert.Equal(t, "1500", refund["total_refund_amount"])
	assert.Equal(t, "PARTIALLY_REFUNDED", refund["refund_status"])

	resp, refunds := api.do(http.MethodGet, fmt.Sprintf("/api/v1/sales/%d/refunds", saleID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, refunds["count"])

	resp, box := api.do(http.MethodGet, "/api/v1/money-box", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1500", box["current_balance"])

	resp, rec := api.do(http.MethodGet, "/api/v1/money-box/reconcile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, rec["balanced"])
	assert.EqualValues(t, 2, rec["transaction_count"])

	resp, txns := api.do(http.MethodGet, "/api/v1/money-box/transactions?type=sale_refund", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, txns["count"])

	resp, _ = api.do(http.MethodGet, "/api/v1/money-box/statement.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "money-box-1.xlsx")

	resp, stock := api.do(http.MethodGet, fmt.Sprintf("/api/v1/stock-items/%d", stockID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, stock["quantity"])
}

func TestCreditSaleDebtPaymentOverHTTP(t *testing.T) {
	api := newAPI(t)
	stockID := api.stock(12, "1000", 1, 5)

	resp, sale := api.do(http.MethodPost, "/api/v1/sales", map[string]any{
		"customer_id":    31,
		"payment_type":   "CREDIT",
		"payment_method": "CASH",
		"debt_due_date":  "2099-01-01T00:00:00Z",
		"items":          []map[string]any{{"stock_item_id": stockID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, sale)
	assert.Equal(t, "UNPAID", sale["payment_status"])

	resp, debts := api.do(http.MethodGet, "/api/v1/debts?customer_id=31&status=active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, debts["count"])
	debtID := int(debts["items"].([]any)[0].(map[string]any)["id"].(float64))

	resp, body := api.do(http.MethodPost, fmt.Sprintf("/api/v1/debts/%d/payments", debtID), map[string]any{
		"amount": "5000", "payment_method": "CASH",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PAYMENT_EXCEEDS_DEBT", body["code"])

	resp, debt := api.do(http.MethodPost, fmt.Sprintf("/api/v1/debts/%d/payments", debtID), map[string]any{
		"amount": "1000", "payment_method": "CASH",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, debt)
	assert.Equal(t, "2000", debt["remaining_amount"])

	resp, summary := api.do(http.MethodGet, "/api/v1/debts/summary?customer_id=31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2000", summary["remaining_amount"])

	resp, sweep := api.do(http.MethodPost, "/api/v1/debts/overdue-sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, sweep["marked"])

	resp, _ = api.do(http.MethodGet, "/api/v1/debts/summary", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaleErrorsMapToStatusCodes(t *testing.T) {
	api := newAPI(t)
	stockID := api.stock(13, "100", 1, 1)

	resp, body := api.do(http.MethodPost, "/api/v1/sales", map[string]any{"payment_type": "CASH"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Contains(t, body["details"], "CreateSaleInput.items")

	resp, body = api.do(http.MethodPost, "/api/v1/sales", `{"payment_type":"CASH","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])

	resp, body = api.do(http.MethodPost, "/api/v1/sales", map[string]any{
		"payment_type": "CASH",
		"items":        []map[string]any{{"stock_item_id": stockID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	assert.Equal(t, "2", body["details"].(map[string]any)["requested"])

	resp, body = api.do(http.MethodGet, "/api/v1/sales/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])

	resp, _ = api.do(http.MethodGet, "/api/v1/sales/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/api/v1/sales?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(http.MethodPost, "/api/v1/sales", map[string]any{
		"currency":     "EUR",
		"payment_type": "CASH",
		"items":        []map[string]any{{"stock_item_id": stockID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "RATE_UNAVAILABLE", body["code"])
}

func TestWithdrawBeyondBalanceIsConflict(t *testing.T) {
	api := newAPI(t)

	resp, _ := api.do(http.MethodPost, "/api/v1/money-box", map[string]any{"initial_balance": "200"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, txn := api.do(http.MethodPost, "/api/v1/money-box/deposits", map[string]any{"amount": "50", "description": "float"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "250", txn["balance_after"])

	resp, body := api.do(http.MethodPost, "/api/v1/money-box/withdrawals", map[string]any{"amount": "300"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_CASH", body["code"])
}

func multipartFile(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (c *apiClient) upload(path, name, content string) (*http.Response, map[string]any) {
	c.t.Helper()
	body, contentType := multipartFile(c.t, name, content)
	headers := map[string]string{"Content-Type": contentType}
	for k, v := range cashier {
		headers[k] = v
	}
	return c.request(http.MethodPost, path, body.String(), headers)
}

func TestImportRatesAndConvert(t *testing.T) {
	api := newAPI(t)

	resp, body := api.upload("/api/v1/exchange-rates/import", "rates.csv", "from,to,rate,source\nUSD,SYP,15000,central bank\n")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 1, body["imported"])

	resp, conv := api.do(http.MethodGet, "/api/v1/exchange-rates/convert?amount=30000&from=SYP&to=USD", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, conv)
	assert.Equal(t, "2", conv["amount"])
	assert.Equal(t, "INVERSE", conv["source"])

	resp, _ = api.do(http.MethodGet, "/api/v1/exchange-rates/convert?amount=x&from=SYP&to=USD", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.upload("/api/v1/exchange-rates/import", "rates.csv", "from,rate\nUSD,1\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
}

func TestImportStockSheet(t *testing.T) {
	api := newAPI(t)
	resp, _ := api.do(http.MethodPost, "/api/v1/products", map[string]any{
		"id": 21, "type": "PHARMACY", "name": "cetirizine", "selling_price": "800", "parts_per_box": 10,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.upload("/api/v1/stock-items/import", "stock.csv", "product_id,quantity,loose_parts,purchase_price\n21,6,4,550\n")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 1, body["imported"])
	item := body["items"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 6, item["quantity"])
	assert.EqualValues(t, 4, item["loose_parts"])

	resp, body = api.upload("/api/v1/stock-items/import", "stock.csv", "product_id,quantity\n99,1\n")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, body)
}
