package market

import (
	"fmt"
	"time"

	"github.com/xenmarket/market/internal/models"
)

// CreateBuyOrder escrows the full trade value plus the buyer deposit and
// posts a standing buy order. Returns the new order id.
func (m *Market) CreateBuyOrder(buyer string, xnmAmount, price uint64, maxDeliveryDays int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.params.Paused {
		return 0, ErrMarketPaused
	}
	if xnmAmount == 0 || price == 0 {
		return 0, ErrInvalidAmount
	}
	usdtTotal, ok := mulU64(xnmAmount, price)
	if !ok {
		return 0, ErrMathOverflow
	}
	if usdtTotal < m.params.MinTradeAmount {
		return 0, fmt.Errorf("order value %d: %w", usdtTotal, ErrBelowMinTradeAmount)
	}
	deposit, ok := mulU64(usdtTotal, m.params.BuyerDepositRate)
	if !ok {
		return 0, ErrMathOverflow
	}
	deposit /= 100

	// Single pull covers value and deposit; if it is rejected nothing has
	// been staged yet.
	if err := m.escrow.Pull(buyer, usdtTotal+deposit); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientAllowance, err)
	}

	id := m.nextBuyOrderID
	m.nextBuyOrderID++
	m.buyOrders[id] = &models.BuyOrder{
		ID:              id,
		Buyer:           buyer,
		XNMAmount:       xnmAmount,
		Price:           price,
		USDTTotal:       usdtTotal,
		BuyerDeposit:    deposit,
		MaxDeliveryDays: maxDeliveryDays,
		Active:          true,
		CreatedAt:       time.Now(),
	}

	m.emit(models.Event{Type: models.EventBuyOrderCreated, OrderID: id, Amount: usdtTotal + deposit})
	return id, nil
}

// CancelBuyOrder refunds the buyer's escrowed value and deposit and
// tombstones the order. Only the order's buyer may cancel, and only once.
func (m *Market) CancelBuyOrder(caller string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.buyOrders[id]
	if !ok {
		return fmt.Errorf("buy order %d: %w", id, ErrOrderNotFound)
	}
	if order.Buyer != caller {
		return ErrNotOwner
	}
	if !order.Active {
		return fmt.Errorf("buy order %d: %w", id, ErrOrderInactive)
	}

	refund := order.USDTTotal + order.BuyerDeposit
	if err := m.escrow.Push(order.Buyer, refund); err != nil {
		return err
	}
	order.Active = false

	m.emit(models.Event{Type: models.EventBuyOrderCancelled, OrderID: id, Amount: refund})
	return nil
}

// CreateSellOrder escrows the seller deposit, computed against the maximum
// fillable value, and posts a standing sell order.
func (m *Market) CreateSellOrder(seller string, price, minXNM, maxXNM uint64, maxDeliveryDays int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.params.Paused {
		return 0, ErrMarketPaused
	}
	if minXNM == 0 || price == 0 {
		return 0, ErrInvalidAmount
	}
	if minXNM > maxXNM {
		return 0, fmt.Errorf("min %d > max %d: %w", minXNM, maxXNM, ErrRangeInvalid)
	}
	maxTotal, ok := mulU64(maxXNM, price)
	if !ok {
		return 0, ErrMathOverflow
	}
	if maxTotal < m.params.MinTradeAmount {
		return 0, fmt.Errorf("order value %d: %w", maxTotal, ErrBelowMinTradeAmount)
	}
	deposit, ok := mulU64(maxTotal, m.params.SellerDepositRate)
	if !ok {
		return 0, ErrMathOverflow
	}
	deposit /= 100

	if err := m.escrow.Pull(seller, deposit); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientAllowance, err)
	}

	id := m.nextSellOrderID
	m.nextSellOrderID++
	m.sellOrders[id] = &models.SellOrder{
		ID:              id,
		Seller:          seller,
		Price:           price,
		MinXNM:          minXNM,
		MaxXNM:          maxXNM,
		SellerDeposit:   deposit,
		MaxDeliveryDays: maxDeliveryDays,
		Active:          true,
		CreatedAt:       time.Now(),
	}

	m.emit(models.Event{Type: models.EventSellOrderCreated, OrderID: id, Amount: deposit})
	return id, nil
}

// CancelSellOrder refunds the seller's deposit and tombstones the order.
// Only the order's seller may cancel, and only once.
func (m *Market) CancelSellOrder(caller string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.sellOrders[id]
	if !ok {
		return fmt.Errorf("sell order %d: %w", id, ErrOrderNotFound)
	}
	if order.Seller != caller {
		return ErrNotSeller
	}
	if !order.Active {
		return fmt.Errorf("sell order %d: %w", id, ErrOrderInactive)
	}

	if err := m.escrow.Push(order.Seller, order.SellerDeposit); err != nil {
		return err
	}
	order.Active = false

	m.emit(models.Event{Type: models.EventSellOrderCancelled, OrderID: id, Amount: order.SellerDeposit})
	return nil
}
