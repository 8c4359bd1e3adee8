package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/xenmarket/market/internal/api"
	"github.com/xenmarket/market/internal/auth"
	"github.com/xenmarket/market/internal/config"
	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/market"
	"github.com/xenmarket/market/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var (
	clients   = make(map[*wsClient]bool)
	clientsMu sync.RWMutex
)

func broadcastOrderBook(m *market.Market) {
	orderBook := struct {
		BuyOrders  []models.BuyOrder  `json:"buy_orders"`
		SellOrders []models.SellOrder `json:"sell_orders"`
	}{
		BuyOrders:  m.OpenBuyOrders(),
		SellOrders: m.OpenSellOrders(),
	}
	data, err := json.Marshal(orderBook)
	if err != nil {
		log.Errorf("Failed to marshal order book: %v", err)
		return
	}

	clientsMu.RLock()
	var stale []*wsClient
	for client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			log.Warnf("Failed to send message: %v", err)
			stale = append(stale, client)
		}
	}
	clientsMu.RUnlock()

	if len(stale) > 0 {
		clientsMu.Lock()
		for _, client := range stale {
			delete(clients, client)
		}
		clientsMu.Unlock()
	}
}

func handleWebSocket(m *market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("Failed to upgrade connection: %v", err)
			return
		}

		client := &wsClient{conn: conn}
		clientsMu.Lock()
		clients[client] = true
		clientsMu.Unlock()

		// Send initial order book
		broadcastOrderBook(m)

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				clientsMu.Lock()
				delete(clients, client)
				clientsMu.Unlock()
				break
			}
		}
	}
}

// Main entry point: wires the ledger, escrow engine, auth and HTTP server.
func main() {
	cfg := config.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Settlement-asset ledger and escrow custody account
	token := ledger.NewInMemoryToken()
	escrow := ledger.NewEscrow(token, cfg.EscrowAccount)

	// Escrow marketplace engine
	m := market.New(escrow, models.MarketParams{
		FeeReceiver:       cfg.FeeReceiver,
		MinTradeAmount:    cfg.MinTradeAmount,
		SellerDepositRate: cfg.SellerDepositRate,
		BuyerDepositRate:  cfg.BuyerDepositRate,
		Owner:             cfg.OwnerAddress,
	}, log.StandardLogger())

	// Auth and API handlers
	authService := auth.NewAuthService(cfg.JWTSecret)
	handler := api.NewHandler(m, token, authService)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket endpoint
	r.Get("/ws", handleWebSocket(m))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
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

		// Arbitrator surface; role checks live in the engine
		r.Put("/admin/params", handler.SetParams)
		r.Put("/admin/pause", handler.PauseNewOrders)
		r.Put("/admin/fees", handler.SetFeeTiers)
		r.Post("/admin/trades/{id}/release", handler.ReleaseTrade)
	})

	// Start periodic order book broadcast
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			broadcastOrderBook(m)
		}
	}()

	log.Infof("Starting server on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
