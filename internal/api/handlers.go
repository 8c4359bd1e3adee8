package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenmarket/market/internal/auth"
	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/market"
	"github.com/xenmarket/market/internal/models"
)

type contextKey string

const addressKey contextKey = "address"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Market      *market.Market
	Token       ledger.Token
	AuthService *auth.AuthService
}

// NewHandler creates a new handler.
func NewHandler(m *market.Market, token ledger.Token, authService *auth.AuthService) *Handler {
	return &Handler{Market: m, Token: token, AuthService: authService}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMarketError maps engine error kinds to HTTP statuses, keeping the
// discriminating kind visible to the caller.
func writeMarketError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotBuyer),
		errors.Is(err, market.ErrNotSeller),
		errors.Is(err, market.ErrNotArbitrator):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, market.ErrTradeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrOrderInactive),
		errors.Is(err, market.ErrTradeNotActive),
		errors.Is(err, market.ErrMarketPaused):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// Register handles user registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.AuthService.Register(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"address":  user.Address,
	})
}

// Login handles user login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and attaches the caller address.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		address, err := h.AuthService.AddressFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), addressKey, address)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerAddress(r *http.Request) (string, bool) {
	address, ok := r.Context().Value(addressKey).(string)
	return address, ok
}

func urlID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

// CreateBuyOrder posts a standing buy order for the caller.
func (h *Handler) CreateBuyOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		XNMAmount       uint64 `json:"xnm_amount"`
		Price           uint64 `json:"price"`
		MaxDeliveryDays int    `json:"max_delivery_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.Market.CreateBuyOrder(address, req.XNMAmount, req.Price, req.MaxDeliveryDays)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"order_id": id})
}

// CreateSellOrder posts a standing sell order for the caller.
func (h *Handler) CreateSellOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Price           uint64 `json:"price"`
		MinXNM          uint64 `json:"min_xnm"`
		MaxXNM          uint64 `json:"max_xnm"`
		MaxDeliveryDays int    `json:"max_delivery_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.Market.CreateSellOrder(address, req.Price, req.MinXNM, req.MaxXNM, req.MaxDeliveryDays)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"order_id": id})
}

// CancelBuyOrder cancels the caller's buy order.
func (h *Handler) CancelBuyOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Market.CancelBuyOrder(address, id); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order cancelled"})
}

// CancelSellOrder cancels the caller's sell order.
func (h *Handler) CancelSellOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Market.CancelSellOrder(address, id); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order cancelled"})
}

// MatchBuyOrder lets the caller (as seller) fully fill a buy order.
func (h *Handler) MatchBuyOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	tradeID, err := h.Market.SellOrderMatchBuy(address, id)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"trade_id": tradeID})
}

// MatchSellOrder lets the caller (as buyer) fill a quantity of a sell order.
func (h *Handler) MatchSellOrder(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		XNMAmount uint64 `json:"xnm_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tradeID, err := h.Market.BuyOrderMatchSell(address, id, req.XNMAmount)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"trade_id": tradeID})
}

// CompleteTrade settles a trade on the buyer's confirmation.
func (h *Handler) CompleteTrade(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	if err := h.Market.CompleteTrade(address, id); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "trade completed"})
}

// GetTrade returns a trade by id.
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	trade, err := h.Market.Trade(id)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// GetOrderBook returns the active orders of both kinds.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"buy_orders":  h.Market.OpenBuyOrders(),
		"sell_orders": h.Market.OpenSellOrders(),
	})
}

// GetEvents returns the event log, optionally from an offset.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since offset")
			return
		}
		since = n
	}
	writeJSON(w, http.StatusOK, h.Market.Events(since))
}

// GetBalance returns the caller's settlement-asset balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": h.Token.BalanceOf(address),
	})
}

// SetParams updates marketplace parameters. Owner-only, enforced by the
// engine.
func (h *Handler) SetParams(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		SellerDepositRate uint64 `json:"seller_deposit_rate"`
		BuyerDepositRate  uint64 `json:"buyer_deposit_rate"`
		MinTradeAmount    uint64 `json:"min_trade_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Market.SetParams(address, req.SellerDepositRate, req.BuyerDepositRate, req.MinTradeAmount); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Market.Params())
}

// PauseNewOrders toggles order creation. Owner-only.
func (h *Handler) PauseNewOrders(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Market.PauseNewOrders(address, req.Paused); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// SetFeeTiers replaces the settlement-fee schedule. Owner-only.
func (h *Handler) SetFeeTiers(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Tiers []models.FeeTier `json:"tiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Market.SetFeeTiers(address, req.Tiers); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Market.FeeTiers())
}

// ReleaseTrade is the arbitrator's forced resolution of a disputed trade.
func (h *Handler) ReleaseTrade(w http.ResponseWriter, r *http.Request) {
	address, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	var req struct {
		USDTToSeller         uint64 `json:"usdt_to_seller"`
		USDTToBuyer          uint64 `json:"usdt_to_buyer"`
		SellerDepositPenalty uint64 `json:"seller_deposit_penalty"`
		BuyerDepositPenalty  uint64 `json:"buyer_deposit_penalty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Market.ReleaseTrade(address, id, req.USDTToSeller, req.USDTToBuyer, req.SellerDepositPenalty, req.BuyerDepositPenalty); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "trade released"})
}
