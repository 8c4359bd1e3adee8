package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenmarket/market/internal/auth"
	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/market"
	"github.com/xenmarket/market/internal/models"
)

const (
	escrowAcct  = "0xescrow"
	feeReceiver = "0xfees"
)

type testEnv struct {
	token  *ledger.InMemoryToken
	market *market.Market
	auth   *auth.AuthService
	router *chi.Mux

	adminToken string
	aliceToken string
	bobToken   string
	alice      string
	bob        string
	admin      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	token := ledger.NewInMemoryToken()
	escrow := ledger.NewEscrow(token, escrowAcct)
	authService := auth.NewAuthService("test-secret")

	adminUser, err := authService.Register("admin", "admin-pass")
	require.NoError(t, err)
	aliceUser, err := authService.Register("alice", "alice-pass")
	require.NoError(t, err)
	bobUser, err := authService.Register("bob", "bob-pass")
	require.NoError(t, err)

	m := market.New(escrow, models.MarketParams{
		FeeReceiver:       feeReceiver,
		MinTradeAmount:    50,
		SellerDepositRate: 21,
		BuyerDepositRate:  5,
		Owner:             adminUser.Address,
	}, logger)

	handler := NewHandler(m, token, authService)
	router := chi.NewRouter()
	router.Post("/auth/register", handler.Register)
	router.Post("/auth/login", handler.Login)
	router.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders/buy", handler.CreateBuyOrder)
		r.Post("/orders/sell", handler.CreateSellOrder)
		r.Delete("/orders/buy/{id}", handler.CancelBuyOrder)
		r.Delete("/orders/sell/{id}", handler.CancelSellOrder)
		r.Post("/orders/buy/{id}/match", handler.MatchBuyOrder)
		r.Post("/orders/sell/{id}/match", handler.MatchSellOrder)
		r.Post("/trades/{id}/complete", handler.CompleteTrade)
		r.Get("/trades/{id}", handler.GetTrade)
		r.Get("/orderbook", handler.GetOrderBook)
		r.Get("/events", handler.GetEvents)
		r.Get("/balance", handler.GetBalance)
		r.Put("/admin/params", handler.SetParams)
		r.Put("/admin/pause", handler.PauseNewOrders)
		r.Put("/admin/fees", handler.SetFeeTiers)
		r.Post("/admin/trades/{id}/release", handler.ReleaseTrade)
	})

	env := &testEnv{
		token:  token,
		market: m,
		auth:   authService,
		router: router,
		alice:  aliceUser.Address,
		bob:    bobUser.Address,
		admin:  adminUser.Address,
	}
	env.adminToken = env.login(t, "admin", "admin-pass")
	env.aliceToken = env.login(t, "alice", "alice-pass")
	env.bobToken = env.login(t, "bob", "bob-pass")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["token"]
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// fund mints and approves escrow spending for an address.
func (e *testEnv) fund(address string, amount uint64) {
	e.token.Mint(address, amount)
	e.token.Approve(address, escrowAcct, amount)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "carol",
		"password": "carol-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "carol", resp["username"])
	assert.NotEmpty(t, resp["address"])

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "carol",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/orders/buy", "", map[string]uint64{"xnm_amount": 100, "price": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/balance", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.alice, 1_000)

	// Below the floor
	rec := env.do(t, http.MethodPost, "/orders/buy", env.aliceToken, map[string]interface{}{
		"xnm_amount": 10, "price": 1, "max_delivery_days": 7,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/orders/buy", env.aliceToken, map[string]interface{}{
		"xnm_amount": 100, "price": 1, "max_delivery_days": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.EqualValues(t, 1, created["order_id"])

	// Shows up in the book
	rec = env.do(t, http.MethodGet, "/orderbook", env.aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var book struct {
		BuyOrders []models.BuyOrder `json:"buy_orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.BuyOrders, 1)
	assert.EqualValues(t, 105, book.BuyOrders[0].USDTTotal+book.BuyOrders[0].BuyerDeposit)

	// Someone else cannot cancel it
	rec = env.do(t, http.MethodDelete, "/orders/buy/1", env.bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/orders/buy/1", env.aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1_000, env.token.BalanceOf(env.alice))

	// Cancelled means gone for good
	rec = env.do(t, http.MethodDelete, "/orders/buy/1", env.aliceToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(t, http.MethodDelete, "/orders/buy/99", env.aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradeLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.alice, 1_000)
	env.fund(env.bob, 1_000)

	rec := env.do(t, http.MethodPost, "/orders/buy", env.aliceToken, map[string]interface{}{
		"xnm_amount": 200, "price": 1, "max_delivery_days": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/orders/buy/1/match", env.bobToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var matched map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matched))
	tradeID := matched["trade_id"]
	require.EqualValues(t, 1, tradeID)

	// Seller cannot confirm completion
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/trades/%d/complete", tradeID), env.bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/trades/%d/complete", tradeID), env.aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1_000-42+190+42, env.token.BalanceOf(env.bob))
	assert.EqualValues(t, 10, env.token.BalanceOf(feeReceiver))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/trades/%d", tradeID), env.aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trade models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	assert.Equal(t, models.TradeCompleted, trade.Status)

	// Event log captured the whole lifecycle
	rec = env.do(t, http.MethodGet, "/events", env.aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 3)
}

func TestAdminSurfaceOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.alice, 1_000)
	env.fund(env.bob, 1_000)

	// Non-owner calls are rejected by the engine's role checks
	rec := env.do(t, http.MethodPut, "/admin/pause", env.aliceToken, map[string]bool{"paused": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/pause", env.adminToken, map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/orders/buy", env.aliceToken, map[string]interface{}{
		"xnm_amount": 100, "price": 1, "max_delivery_days": 7,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/pause", env.adminToken, map[string]bool{"paused": false})
	require.Equal(t, http.StatusOK, rec.Code)

	// Arbitrated release over HTTP
	rec = env.do(t, http.MethodPost, "/orders/sell", env.bobToken, map[string]interface{}{
		"price": 1, "min_xnm": 50, "max_xnm": 100, "max_delivery_days": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/orders/sell/1/match", env.aliceToken, map[string]uint64{"xnm_amount": 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	release := map[string]uint64{
		"usdt_to_seller":         40,
		"usdt_to_buyer":          60,
		"seller_deposit_penalty": 10,
		"buyer_deposit_penalty":  2,
	}
	rec = env.do(t, http.MethodPost, "/admin/trades/1/release", env.aliceToken, release)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/trades/1/release", env.adminToken, release)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 12, env.token.BalanceOf(feeReceiver))

	// Released is terminal
	rec = env.do(t, http.MethodPost, "/admin/trades/1/release", env.adminToken, release)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.alice, 777)

	rec := env.do(t, http.MethodGet, "/balance", env.aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, env.alice, resp.Address)
	assert.EqualValues(t, 777, resp.Balance)
}
