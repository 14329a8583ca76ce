// Package httpapi exposes the marketplace over a REST surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	app "github.com/dexlabs/simpledex/internal/app"
	"github.com/dexlabs/simpledex/internal/app/auth"
	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/storage"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	// Tokens are static bearer tokens accepted alongside JWT credentials.
	Tokens []string
	// AuditMax bounds the in-memory audit trail; zero keeps the default.
	AuditMax int
	// AuditFile, when set, appends audit entries as JSONL to the given path.
	AuditFile string
}

// New builds the authenticated REST handler for the application.
func New(application *app.Application, authMgr *auth.Manager, opts Options, log *logger.Logger) (http.Handler, error) {
	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	audit := newAuditLog(opts.AuditMax, sink)
	mux := newHandler(application, authMgr, audit)
	return wrapWithAuth(mux, opts.Tokens, authMgr, audit, log), nil
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	auth  *auth.Manager
	audit *auditLog
}

// newHandler returns a mux exposing the core REST API.
func newHandler(application *app.Application, authMgr *auth.Manager, audit *auditLog) http.Handler {
	h := &handler{app: application, auth: authMgr, audit: audit}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/orders", h.orders)
	mux.HandleFunc("/orders/", h.orderResources)
	mux.HandleFunc("/events", h.events)
	mux.HandleFunc("/ledger/accounts", h.ledgerAccounts)
	mux.HandleFunc("/ledger/accounts/", h.ledgerAccountResources)
	mux.HandleFunc("/admin/operators", h.adminOperators)
	mux.HandleFunc("/admin/fee", h.adminFee)
	mux.HandleFunc("/admin/beneficiary", h.adminBeneficiary)
	mux.HandleFunc("/admin/audit", h.adminAudit)
	if application.Dev != nil {
		mux.HandleFunc("/dev/registries", h.devRegistries)
		mux.HandleFunc("/dev/registries/", h.devRegistryResources)
	}
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.auth == nil {
		writeError(w, http.StatusNotImplemented, errors.New("authentication not configured"))
		return
	}

	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.auth.Login(payload.Username, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Orders ----------------------------------------------------------------------

func (h *handler) orders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Seller          string `json:"seller"`
			AssetClass      string `json:"asset_class"`
			AssetContract   string `json:"asset_contract"`
			ItemID          string `json:"item_id"`
			Quantity        uint64 `json:"quantity"`
			UnitPrice       string `json:"unit_price"`
			PaymentToken    string `json:"payment_token"`
			DesignatedBuyer string `json:"designated_buyer"`
			MaxPerPurchase  uint64 `json:"max_per_purchase"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		price, err := parseAmount(payload.UnitPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := h.app.Market.CreateOrder(r.Context(), payload.Seller, order.Params{
			AssetClass:      order.AssetClass(payload.AssetClass),
			AssetContract:   payload.AssetContract,
			ItemID:          payload.ItemID,
			Quantity:        payload.Quantity,
			UnitPrice:       price,
			PaymentToken:    payload.PaymentToken,
			DesignatedBuyer: payload.DesignatedBuyer,
			MaxPerPurchase:  payload.MaxPerPurchase,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		seller := r.URL.Query().Get("seller")
		openOnly := r.URL.Query().Get("open") == "true"
		orders, err := h.app.Market.ListOrders(r.Context(), seller, openOnly)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orderResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/orders"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	orderID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ord, err := h.app.Market.GetOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, ord)
		return
	}

	if parts[1] == "buy" {
		h.buy(w, r, orderID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request, orderID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Buyer    string `json:"buyer"`
		Quantity uint64 `json:"quantity"`
		Payment  string `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pay, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.app.Market.Buy(r.Context(), payload.Buyer, orderID, payload.Quantity, pay)
	if err != nil {
		writeError(w, rejectionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Events ----------------------------------------------------------------------

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	orderID := r.URL.Query().Get("order_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	// The persisted log is the source of truth; the in-memory feed only
	// serves when no store is configured or the store read fails.
	if h.app.Events != nil {
		evts, err := h.app.Events.ListEvents(r.Context(), orderID, limit)
		if err == nil {
			if evts == nil {
				evts = []events.Event{}
			}
			writeJSON(w, http.StatusOK, evts)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.app.Feed.List(orderID, limit))
}

// Ledger ----------------------------------------------------------------------

func (h *handler) ledgerAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct, err := h.app.Ledger.EnsureAccount(r.Context(), payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) ledgerAccountResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ledger/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	address := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		acct, err := h.app.Ledger.Account(r.Context(), address)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, acct)
		return
	}

	switch parts[1] {
	case "deposit":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Amount    string `json:"amount"`
			Reference string `json:"reference"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		amount, err := parseAmount(payload.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		acct, entry, err := h.app.Ledger.Deposit(r.Context(), address, amount, payload.Reference)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": acct, "entry": entry})

	case "entries":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		entries, err := h.app.Ledger.Entries(r.Context(), address)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Admin -----------------------------------------------------------------------

func (h *handler) adminOperators(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Operators []string `json:"operators"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.Broker.AddOperators(r.Context(), caller, payload.Operators); err != nil {
			writeError(w, rejectionStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		operators, err := h.app.Broker.ListOperators(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, operators)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var payload struct {
			BasisPoints uint32 `json:"basis_points"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.Market.SetServiceFee(r.Context(), caller, payload.BasisPoints); err != nil {
			writeError(w, rejectionStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		beneficiary, bp := h.app.Market.FeeInfo()
		writeJSON(w, http.StatusOK, map[string]any{"beneficiary": beneficiary, "basis_points": bp})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminBeneficiary(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Market.SetFeeBeneficiary(r.Context(), caller, payload.Address); err != nil {
		writeError(w, rejectionStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []auditEntry{})
		return
	}
	writeJSON(w, http.StatusOK, h.audit.list())
}

// requireAdmin resolves the authenticated admin identity, writing the error
// response itself when the caller does not qualify.
func (h *handler) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil || claims.Role != "admin" {
		writeError(w, http.StatusForbidden, errors.New("administrator role required"))
		return "", false
	}
	return claims.Address, true
}

// Dev registries --------------------------------------------------------------

func (h *handler) devRegistries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		AssetClass string `json:"asset_class"`
		Contract   string `json:"contract"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Contract == "" {
		writeError(w, http.StatusBadRequest, errors.New("contract address is required"))
		return
	}

	if err := h.app.RegisterDevRegistry(order.AssetClass(payload.AssetClass), payload.Contract); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) devRegistryResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/dev/registries"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	contract, action := parts[0], parts[1]

	switch action {
	case "mint":
		var payload struct {
			Owner    string `json:"owner"`
			ItemID   string `json:"item_id"`
			Quantity uint64 `json:"quantity"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.DevMint(contract, payload.Owner, payload.ItemID, payload.Quantity); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "approve":
		var payload struct {
			Owner    string `json:"owner"`
			Operator string `json:"operator"`
			Approved bool   `json:"approved"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.DevApprove(contract, payload.Owner, payload.Operator, payload.Approved); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Helpers ----------------------------------------------------------------------

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount is required")
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// rejectionStatus maps domain rejections to HTTP status codes.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotOpen):
		return http.StatusNotFound
	case errors.Is(err, order.ErrNotDesignatedBuyer), errors.Is(err, order.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
