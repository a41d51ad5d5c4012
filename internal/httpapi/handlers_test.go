package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lojapet/backend/internal/service"
	"lojapet/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded(false)
	svc := service.New(repo, nil, 5, time.Minute)
	auth := NewAuthManager("test-secret", time.Hour, repo)
	return New(svc, auth, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAdmin(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login": "admin",
		"senha": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}
	return resp.AccessToken
}

func TestBearerTokenRequired(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	token := loginAdmin(t, handler)
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPreflightPassesWithoutAuth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodOptions, "/api/v1/sales", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
}

func TestSaleEndpointStatuses(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAdmin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-racao-premium-15", "tipo_venda": "kg", "quantidade_kg": 2},
		},
		"forma_pagamento": "pix",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid sale status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale struct {
			TotalCents int64 `json:"total_cents"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.TotalCents != 2200 {
		t.Fatalf("total = %d, want 2200", created.Sale.TotalCents)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-nope", "tipo_venda": "kg", "quantidade_kg": 1},
		},
		"forma_pagamento": "pix",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-racao-premium-15", "tipo_venda": "kg", "quantidade_kg": 1},
		},
		"forma_pagamento": "cheque",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad payment status = %d, want 400", rec.Code)
	}

	// Weight-based product carries no unit price.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-racao-premium-15", "tipo_venda": "unidade", "quantidade_kg": 1},
		},
		"forma_pagamento": "pix",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing price status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestCashierStatuses(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAdmin(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/cashier/current", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "null\n" {
		t.Fatalf("current body = %q, want null", body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cashier/open", token, map[string]any{"saldo_inicial": 10000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cashier/open", token, map[string]any{"saldo_inicial": 500})
	if rec.Code != http.StatusConflict {
		t.Fatalf("double open status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cashier/supply", token, map[string]any{"valor": 2000, "descricao": "troco"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("supply status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cashier/close", token, map[string]any{"observacao": "fim"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d, body %s", rec.Code, rec.Body.String())
	}
	var closed struct {
		EstimatedCents int64 `json:"saldo_estimado_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.EstimatedCents != 12000 {
		t.Fatalf("estimated = %d, want 12000", closed.EstimatedCents)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cashier/close", token, map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("close without open status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cashier/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
}

func TestExpenseMonthListing(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAdmin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"descricao":        "Aluguel",
		"categoria":        "fixo",
		"valor":            150000,
		"data_vencimento":  "2026-01-10",
		"tipo_recorrencia": "mensal",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Expense struct {
			ID string `json:"id"`
		} `json:"expense"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode expense: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/expenses?mes=2026-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Expenses []struct {
			ID      string `json:"id"`
			Virtual bool   `json:"virtual"`
			Paid    bool   `json:"pago"`
		} `json:"expenses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Expenses) != 1 || !list.Expenses[0].Virtual {
		t.Fatalf("march listing = %+v, want one virtual row", list.Expenses)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/expenses/"+created.Expense.ID+"/toggle-pago?mes=2026-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/expenses?mes=2026-03", token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Expenses) != 1 || list.Expenses[0].Virtual || !list.Expenses[0].Paid {
		t.Fatalf("after toggle = %+v, want one paid materialized row", list.Expenses)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/expenses/summary?mes=2026-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var summary struct {
		TotalCents int64 `json:"total_cents"`
		PaidCents  int64 `json:"pago_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalCents != 150000 || summary.PaidCents != 150000 {
		t.Fatalf("summary = %+v, want 150000 total and paid", summary)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login": "caixa",
		"senha": "caixa123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cashier login status = %d", rec.Code)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", resp.AccessToken, map[string]any{
		"nome":           "Petisco",
		"categoria":      "outros",
		"preco_unitario": 990,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier create product status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products?search=racao", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cashier list products status = %d, want 200", rec.Code)
	}
}

func TestStockEntryAndMovements(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAdmin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products/prod-racao-gato-3/stock-entry", token, map[string]any{
		"quantidade_kg": 6,
		"motivo":        "reposicao",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("stock entry status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/movements", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("movements status = %d", rec.Code)
	}
	var moves struct {
		Movements []struct {
			Type     string  `json:"tipo"`
			Quantity float64 `json:"quantidade"`
		} `json:"movements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &moves); err != nil {
		t.Fatalf("decode movements: %v", err)
	}
	if len(moves.Movements) != 1 || moves.Movements[0].Type != "entrada" || moves.Movements[0].Quantity != 6 {
		t.Fatalf("movements = %+v, want one entrada of 6", moves.Movements)
	}
}
