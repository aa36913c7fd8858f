package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chaikadai/backend/internal/billing"
	"chaikadai/backend/internal/bulk"
	"chaikadai/backend/internal/cache"
	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/service"
	"chaikadai/backend/internal/stock"
	"chaikadai/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. The clock
// is pinned to midday so special-window items stay hidden.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	now := func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	ledger := stock.New(repo, nil,
		stock.WithLocation(time.UTC),
		stock.WithNow(now),
	)
	taxes := billing.NewTaxTable(repo)
	engine := billing.NewEngine(taxes)
	pipeline := bulk.New(repo, ledger, taxes, bulk.WithNow(now), bulk.WithLocation(time.UTC))
	svc := service.New(repo, ledger, engine, taxes, pipeline, cache.NoopMenuCache{}, 30*time.Second, 50, service.WithNow(now))
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// loginAs obtains an access token for the given seeded account.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

// fetchCSRFToken retrieves a CSRF token for mutating requests.
func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if body["csrf_token"] == "" {
		t.Fatalf("expected csrf_token in response")
	}
	return body["csrf_token"]
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "admin", "admin123")
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute.
	// Fire 6 requests from the same "IP".
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleMenu_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu/tea", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMenu_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "operator", "operator123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu/tea", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Items []domain.MenuItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) == 0 {
		t.Fatalf("expected tea menu items, got none")
	}
	for _, item := range body.Items {
		if item.Category != "tea" {
			t.Fatalf("expected only tea items, got %+v", item)
		}
	}
}

func TestCartFlow_AddBillCheckout(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "operator", "operator123")
	csrf := fetchCSRFToken(t, handler)

	// Add two Masala Tea to a fresh cart.
	addPayload, _ := json.Marshal(map[string]any{
		"item_name": "Masala Tea",
		"quantity":  2,
	})
	addReq := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewReader(addPayload))
	addReq.Header.Set("Content-Type", "application/json")
	addReq.Header.Set("Authorization", "Bearer "+token)
	addReq.Header.Set("X-CSRF-Token", csrf)
	addRec := httptest.NewRecorder()
	handler.ServeHTTP(addRec, addReq)

	if addRec.Code != http.StatusCreated {
		t.Fatalf("add to cart: expected 201, got %d (body: %s)", addRec.Code, addRec.Body.String())
	}

	var addResp domain.CartItemResponse
	if err := json.NewDecoder(addRec.Body).Decode(&addResp); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	if addResp.Cart.ID == "" || addResp.Granted != 2 {
		t.Fatalf("unexpected add response %+v", addResp)
	}
	cartID := addResp.Cart.ID

	// Bill preview.
	billReq := httptest.NewRequest(http.MethodGet, "/api/v1/cart/"+cartID+"/bill", nil)
	billReq.Header.Set("Authorization", "Bearer "+token)
	billRec := httptest.NewRecorder()
	handler.ServeHTTP(billRec, billReq)

	if billRec.Code != http.StatusOK {
		t.Fatalf("bill: expected 200, got %d (body: %s)", billRec.Code, billRec.Body.String())
	}

	var billBody struct {
		Bill domain.BillSummary `json:"bill"`
	}
	if err := json.NewDecoder(billRec.Body).Decode(&billBody); err != nil {
		t.Fatalf("decode bill: %v", err)
	}
	// 2 x 12.00 at the standard 5% slab.
	if billBody.Bill.Subtotal.StringFixed(2) != "24.00" || billBody.Bill.Total.StringFixed(2) != "25.20" {
		t.Fatalf("unexpected bill %+v", billBody.Bill)
	}

	// Checkout.
	checkoutReq := httptest.NewRequest(http.MethodPost, "/api/v1/cart/"+cartID+"/checkout", nil)
	checkoutReq.Header.Set("Authorization", "Bearer "+token)
	checkoutReq.Header.Set("X-CSRF-Token", csrf)
	checkoutRec := httptest.NewRecorder()
	handler.ServeHTTP(checkoutRec, checkoutReq)

	if checkoutRec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (body: %s)", checkoutRec.Code, checkoutRec.Body.String())
	}

	// Cart is gone after checkout.
	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/cart/"+cartID, nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for checked-out cart, got %d", getRec.Code)
	}
}

func TestHandleBulkImport_DuplicateReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "operator", "operator123")
	csrf := fetchCSRFToken(t, handler)

	payload, _ := json.Marshal(map[string]any{
		"file_name": "orders-morning.csv",
		"rows": []map[string]any{
			{"item_name": "Masala Tea", "quantity": 5},
		},
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bulk/import", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first import: expected 200, got %d (body: %s)", first.Code, first.Body.String())
	}

	second := send()
	if second.Code != http.StatusConflict {
		t.Fatalf("second import: expected 409, got %d (body: %s)", second.Code, second.Body.String())
	}
}

func TestHandleReportQuery_RequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	operatorToken := loginAs(t, handler, "operator", "operator123")
	csrf := fetchCSRFToken(t, handler)

	payload, _ := json.Marshal(map[string]any{
		"fields":     []string{"Item_Name"},
		"start_date": "2026-08-01",
		"end_date":   "2026-08-31",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleReportQuery_CSVFormat(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := fetchCSRFToken(t, handler)

	payload, _ := json.Marshal(map[string]any{
		"fields":     []string{"Item_Name"},
		"aggregates": []string{"Quantity"},
		"start_date": "2026-08-01",
		"end_date":   "2026-08-31",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/query?format=csv", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv content type, got %s", ct)
	}
	if rec.Body.String() != "Item_Name,Tot.Quantity\n" {
		t.Fatalf("expected header-only csv for empty sales, got %q", rec.Body.String())
	}
}

func TestHandleStockReplenish_AdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := fetchCSRFToken(t, handler)

	payload, _ := json.Marshal(map[string]any{"target": 60})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/replenish", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["replenished"]; !ok {
		t.Fatalf("expected replenished count in response, got %v", body)
	}
}
