package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/dexlabs/simpledex/internal/app"
	"github.com/dexlabs/simpledex/internal/app/auth"
	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/events"
)

const staticToken = "test-api-token"

func newTestAPI(t *testing.T) (http.Handler, *app.Application, *auth.Manager) {
	t.Helper()

	core, err := app.New(app.Config{
		Admin:          "admin",
		FeeBeneficiary: "treasury",
		FeeBasisPoints: 250,
	}, app.Stores{}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	authMgr := auth.NewManager("test-secret", []auth.User{
		{Username: "root", Password: "secret", Role: "admin", Address: "admin"},
	})

	handler, err := New(core, authMgr, Options{Tokens: []string{staticToken}}, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return handler, core, authMgr
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	handler, _, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestRequestsRequireBearerToken(t *testing.T) {
	handler, _, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/orders", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/orders", "wrong-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/orders", staticToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	handler, _, _ := newTestAPI(t)

	// Development registries stand in for external asset contracts.
	rec := doJSON(t, handler, http.MethodPost, "/dev/registries", staticToken, map[string]any{
		"asset_class": "single_unit", "contract": "c1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register registry status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/dev/registries/c1/mint", staticToken, map[string]any{
		"owner": "alice", "item_id": "nft-1", "quantity": 1,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mint status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/dev/registries/c1/approve", staticToken, map[string]any{
		"owner": "alice", "operator": "broker", "approved": true,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/ledger/accounts/bob/deposit", staticToken, map[string]any{
		"amount": "2050",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/orders", staticToken, map[string]any{
		"seller":         "alice",
		"asset_class":    "single_unit",
		"asset_contract": "c1",
		"item_id":        "nft-1",
		"quantity":       1,
		"unit_price":     "2000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status = %d: %s", rec.Code, rec.Body.String())
	}
	var created order.Order
	decodeBody(t, rec, &created)
	if created.ID != "1" || !created.Open() {
		t.Fatalf("unexpected created order %+v", created)
	}

	// Wrong payment is rejected before any state changes.
	rec = doJSON(t, handler, http.MethodPost, "/orders/1/buy", staticToken, map[string]any{
		"buyer": "bob", "quantity": 1, "payment": "2000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("underpaid buy status = %d: %s", rec.Code, rec.Body.String())
	}

	// 2000 base + 2.5% fee.
	rec = doJSON(t, handler, http.MethodPost, "/orders/1/buy", staticToken, map[string]any{
		"buyer": "bob", "quantity": 1, "payment": "2050",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy status = %d: %s", rec.Code, rec.Body.String())
	}
	var receipt struct {
		OrderID string
		Closed  bool
	}
	decodeBody(t, rec, &receipt)
	if receipt.OrderID != "1" || !receipt.Closed {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	rec = doJSON(t, handler, http.MethodGet, "/orders/1", staticToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order status = %d", rec.Code)
	}
	var stored order.Order
	decodeBody(t, rec, &stored)
	if stored.Open() || stored.Quantity != 0 {
		t.Fatalf("order not closed after full purchase: %+v", stored)
	}

	// Buying again reports the order as no longer open.
	rec = doJSON(t, handler, http.MethodPost, "/orders/1/buy", staticToken, map[string]any{
		"buyer": "bob", "quantity": 1, "payment": "2050",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("buy on closed order status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/events?order_id=1", staticToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var evts []struct {
		Type string `json:"type"`
	}
	decodeBody(t, rec, &evts)
	if len(evts) != 3 {
		t.Fatalf("event count = %d, want created/buy/closed", len(evts))
	}
	if evts[0].Type != "order.created" || evts[1].Type != "order.buy" || evts[2].Type != "order.closed" {
		t.Fatalf("unexpected event sequence %+v", evts)
	}
}

func TestEventsAreServedFromThePersistedLog(t *testing.T) {
	handler, core, _ := newTestAPI(t)

	// Events written straight to the store (as after a restart, when the
	// in-memory feed is empty) must still be visible through the API.
	if _, err := core.Events.AppendEvent(context.Background(), events.Event{
		Type:    events.TypeOrderCreated,
		OrderID: "42",
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/events?order_id=42", staticToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var evts []struct {
		Type    string `json:"type"`
		OrderID string `json:"order_id"`
	}
	decodeBody(t, rec, &evts)
	if len(evts) != 1 || evts[0].Type != "order.created" || evts[0].OrderID != "42" {
		t.Fatalf("events = %+v, want the persisted order.created event", evts)
	}

	rec = doJSON(t, handler, http.MethodGet, "/events?limit=bogus", staticToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d, want 400", rec.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	handler, _, authMgr := newTestAPI(t)

	// A static token carries no role and cannot reach admin routes.
	rec := doJSON(t, handler, http.MethodGet, "/admin/operators", staticToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("static token admin status = %d, want 403", rec.Code)
	}

	token, err := authMgr.Login("root", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/admin/operators", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin operators status = %d: %s", rec.Code, rec.Body.String())
	}
	var operators []string
	decodeBody(t, rec, &operators)
	// The engine is registered as a broker operator at wiring time.
	if len(operators) != 1 || operators[0] != "market-engine" {
		t.Fatalf("operators = %v, want [market-engine]", operators)
	}

	rec = doJSON(t, handler, http.MethodPut, "/admin/fee", token, map[string]any{"basis_points": 100})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set fee status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodGet, "/admin/fee", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get fee status = %d", rec.Code)
	}
	var fee struct {
		Beneficiary string  `json:"beneficiary"`
		BasisPoints float64 `json:"basis_points"`
	}
	decodeBody(t, rec, &fee)
	if fee.BasisPoints != 100 || fee.Beneficiary != "treasury" {
		t.Fatalf("fee info = %+v, want 100 bp to treasury", fee)
	}

	rec = doJSON(t, handler, http.MethodGet, "/admin/audit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}
	var audit []struct {
		Path       string `json:"path"`
		Authorized bool   `json:"authorized"`
	}
	decodeBody(t, rec, &audit)
	if len(audit) == 0 {
		t.Fatalf("audit trail empty after authenticated requests")
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	handler, _, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "root", "password": "secret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &out)
	if out.Token == "" {
		t.Fatalf("empty token")
	}

	rec = doJSON(t, handler, http.MethodGet, "/orders", out.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token-authenticated request status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "root", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}
}
