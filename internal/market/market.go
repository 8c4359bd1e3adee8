package market

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/models"
)

// Market is the escrowed order-and-trade engine. Every public operation runs
// to completion under one mutex: validation, fund movement and state mutation
// are observed as a single atomic unit, and a rejected ledger call leaves all
// state untouched.
type Market struct {
	mu sync.Mutex

	params   models.MarketParams
	feeTiers []models.FeeTier
	escrow   *ledger.Escrow

	buyOrders  map[uint64]*models.BuyOrder
	sellOrders map[uint64]*models.SellOrder
	trades     map[uint64]*models.Trade

	nextBuyOrderID  uint64
	nextSellOrderID uint64
	nextTradeID     uint64

	sellerStats map[string]*models.SellerStats
	events      []models.Event

	logger *log.Logger
}

// New creates a market engine with the given initial parameters and the
// default fee schedule.
func New(escrow *ledger.Escrow, params models.MarketParams, logger *log.Logger) *Market {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Market{
		params:          params,
		feeTiers:        DefaultFeeTiers(),
		escrow:          escrow,
		buyOrders:       make(map[uint64]*models.BuyOrder),
		sellOrders:      make(map[uint64]*models.SellOrder),
		trades:          make(map[uint64]*models.Trade),
		nextBuyOrderID:  1,
		nextSellOrderID: 1,
		nextTradeID:     1,
		sellerStats:     make(map[string]*models.SellerStats),
		logger:          logger,
	}
}

// SetParams updates the deposit rates and minimum trade size. Owner-only.
// Existing orders and trades keep the deposits computed at their creation.
func (m *Market) SetParams(caller string, sellerDepositRate, buyerDepositRate, minTradeAmount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Owner {
		return ErrNotOwner
	}
	m.params.SellerDepositRate = sellerDepositRate
	m.params.BuyerDepositRate = buyerDepositRate
	m.params.MinTradeAmount = minTradeAmount

	m.logger.WithFields(log.Fields{
		"seller_deposit_rate": sellerDepositRate,
		"buyer_deposit_rate":  buyerDepositRate,
		"min_trade_amount":    minTradeAmount,
	}).Info("market params updated")
	return nil
}

// PauseNewOrders toggles the creation pause. Owner-only. Matching, completion
// and release keep working so escrowed funds can always reach a terminal
// state.
func (m *Market) PauseNewOrders(caller string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Owner {
		return ErrNotOwner
	}
	m.params.Paused = paused
	m.logger.WithField("paused", paused).Info("order creation pause toggled")
	return nil
}

// SetFeeTiers replaces the settlement-fee schedule. Owner-only.
func (m *Market) SetFeeTiers(caller string, tiers []models.FeeTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Owner {
		return ErrNotOwner
	}
	if !validFeeTiers(tiers) {
		return ErrFeeTiersInvalid
	}
	m.feeTiers = append([]models.FeeTier(nil), tiers...)
	m.logger.WithField("tiers", len(tiers)).Info("fee schedule replaced")
	return nil
}

// Params returns a copy of the current marketplace parameters.
func (m *Market) Params() models.MarketParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// FeeTiers returns a copy of the current fee schedule.
func (m *Market) FeeTiers() []models.FeeTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FeeTier(nil), m.feeTiers...)
}

// BuyOrder returns the buy order by id.
func (m *Market) BuyOrder(id uint64) (models.BuyOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.buyOrders[id]
	if !ok {
		return models.BuyOrder{}, fmt.Errorf("buy order %d: %w", id, ErrOrderNotFound)
	}
	return *o, nil
}

// SellOrder returns the sell order by id.
func (m *Market) SellOrder(id uint64) (models.SellOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sellOrders[id]
	if !ok {
		return models.SellOrder{}, fmt.Errorf("sell order %d: %w", id, ErrOrderNotFound)
	}
	return *o, nil
}

// Trade returns the trade by id.
func (m *Market) Trade(id uint64) (models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return models.Trade{}, fmt.Errorf("trade %d: %w", id, ErrTradeNotFound)
	}
	return *t, nil
}

// OpenBuyOrders returns all active buy orders in id order.
func (m *Market) OpenBuyOrders() []models.BuyOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []models.BuyOrder
	for id := uint64(1); id < m.nextBuyOrderID; id++ {
		if o := m.buyOrders[id]; o != nil && o.Active {
			orders = append(orders, *o)
		}
	}
	return orders
}

// OpenSellOrders returns all active sell orders in id order.
func (m *Market) OpenSellOrders() []models.SellOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []models.SellOrder
	for id := uint64(1); id < m.nextSellOrderID; id++ {
		if o := m.sellOrders[id]; o != nil && o.Active {
			orders = append(orders, *o)
		}
	}
	return orders
}

// SellerStats returns the stats record for a seller. Sellers without
// completed trades get a zero record.
func (m *Market) SellerStats(seller string) models.SellerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sellerStats[seller]; s != nil {
		return *s
	}
	return models.SellerStats{Seller: seller}
}

// Events returns the event log from the given offset.
func (m *Market) Events(since int) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if since < 0 || since > len(m.events) {
		since = len(m.events)
	}
	return append([]models.Event(nil), m.events[since:]...)
}

// emit appends to the event log and writes the structured log line.
// Callers hold the engine mutex.
func (m *Market) emit(ev models.Event) {
	ev.At = time.Now()
	m.events = append(m.events, ev)
	m.logger.WithFields(log.Fields{
		"event":    ev.Type,
		"order_id": ev.OrderID,
		"trade_id": ev.TradeID,
		"amount":   ev.Amount,
	}).Info("market event")
}

// accrueSellerVolume adds settled value to the seller's lifetime volume.
// Callers hold the engine mutex.
func (m *Market) accrueSellerVolume(seller string, amount uint64, completed bool) {
	s := m.sellerStats[seller]
	if s == nil {
		s = &models.SellerStats{Seller: seller}
		m.sellerStats[seller] = s
	}
	s.LifetimeVolume += amount
	if completed {
		s.CompletedTrades++
	}
}
