package models

import (
	"fmt"
	"time"
)

// User represents a registered marketplace user. Every user is assigned an
// unforgeable address that the engine uses as its caller identity.
type User struct {
	ID           int
	Username     string
	PasswordHash string
	Address      string
	CreatedAt    time.Time
}

// BuyOrder is a standing offer to buy XNM. The record is never deleted;
// cancellation or a full match flips Active to false.
type BuyOrder struct {
	ID              uint64    `json:"id"`
	Buyer           string    `json:"buyer"`
	XNMAmount       uint64    `json:"xnm_amount"`
	Price           uint64    `json:"price"`
	USDTTotal       uint64    `json:"usdt_total"`
	BuyerDeposit    uint64    `json:"buyer_deposit"`
	MaxDeliveryDays int       `json:"max_delivery_days"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// SellOrder is a standing offer to deliver between MinXNM and MaxXNM units.
// SellerDeposit is computed against MaxXNM*Price at creation time and locked
// in full regardless of eventual fill size.
type SellOrder struct {
	ID              uint64    `json:"id"`
	Seller          string    `json:"seller"`
	Price           uint64    `json:"price"`
	MinXNM          uint64    `json:"min_xnm"`
	MaxXNM          uint64    `json:"max_xnm"`
	SellerDeposit   uint64    `json:"seller_deposit"`
	MaxDeliveryDays int       `json:"max_delivery_days"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// TradeStatus is the trade lifecycle state. Active is the only non-terminal
// state; a trade is never reopened once Completed or Released.
type TradeStatus int

const (
	TradeActive TradeStatus = iota
	TradeCompleted
	TradeReleased
)

func (s TradeStatus) String() string {
	switch s {
	case TradeActive:
		return "active"
	case TradeCompleted:
		return "completed"
	case TradeReleased:
		return "released"
	}
	return "unknown"
}

// MarshalJSON renders the status as its lowercase name.
func (s TradeStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the lowercase status name.
func (s *TradeStatus) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"active"`:
		*s = TradeActive
	case `"completed"`:
		*s = TradeCompleted
	case `"released"`:
		*s = TradeReleased
	default:
		return fmt.Errorf("unknown trade status %s", data)
	}
	return nil
}

// Trade is created when an order is matched. Status is the only field mutated
// after creation.
type Trade struct {
	ID            uint64      `json:"id"`
	BuyOrderID    uint64      `json:"buy_order_id,omitempty"`
	SellOrderID   uint64      `json:"sell_order_id,omitempty"`
	Buyer         string      `json:"buyer"`
	Seller        string      `json:"seller"`
	XNMAmount     uint64      `json:"xnm_amount"`
	USDTAmount    uint64      `json:"usdt_amount"`
	BuyerDeposit  uint64      `json:"buyer_deposit"`
	SellerDeposit uint64      `json:"seller_deposit"`
	Status        TradeStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

// MarketParams is the single mutable marketplace configuration record.
// Deposit rates are whole percentages. Changes apply only to orders and
// trades created after the update.
type MarketParams struct {
	FeeReceiver       string `json:"fee_receiver"`
	MinTradeAmount    uint64 `json:"min_trade_amount"`
	SellerDepositRate uint64 `json:"seller_deposit_rate"`
	BuyerDepositRate  uint64 `json:"buyer_deposit_rate"`
	Paused            bool   `json:"paused"`
	Owner             string `json:"owner"`
}

// FeeTier maps a lifetime-volume threshold to a settlement fee in basis
// points. The applicable tier is the highest MinVolume not exceeding the
// seller's volume.
type FeeTier struct {
	MinVolume uint64 `json:"min_volume"`
	FeeBps    uint64 `json:"fee_bps"`
}

// SellerStats tracks a seller's completed settlement volume, which drives
// the fee tier.
type SellerStats struct {
	Seller          string `json:"seller"`
	LifetimeVolume  uint64 `json:"lifetime_volume"`
	CompletedTrades int    `json:"completed_trades"`
}

// EventType identifies an engine event.
type EventType string

const (
	EventBuyOrderCreated    EventType = "buy_order_created"
	EventBuyOrderCancelled  EventType = "buy_order_cancelled"
	EventSellOrderCreated   EventType = "sell_order_created"
	EventSellOrderCancelled EventType = "sell_order_cancelled"
	EventTradeMatched       EventType = "trade_matched"
	EventTradeCompleted     EventType = "trade_completed"
	EventTradeReleased      EventType = "trade_released"
)

// Event is an observability record emitted by the engine. Not required for
// correctness; kept in an append-only log for indexing.
type Event struct {
	Type    EventType `json:"type"`
	OrderID uint64    `json:"order_id,omitempty"`
	TradeID uint64    `json:"trade_id,omitempty"`
	Amount  uint64    `json:"amount,omitempty"`
	At      time.Time `json:"at"`
}
