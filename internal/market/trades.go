package market

import (
	"fmt"
	"time"

	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/models"
)

// SellOrderMatchBuy fully fills an active buy order: the caller becomes the
// seller, locks a deposit against the order value, and an Active trade is
// created. Returns the new trade id.
func (m *Market) SellOrderMatchBuy(seller string, buyOrderID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.buyOrders[buyOrderID]
	if !ok {
		return 0, fmt.Errorf("buy order %d: %w", buyOrderID, ErrOrderNotFound)
	}
	if !order.Active {
		return 0, fmt.Errorf("buy order %d: %w", buyOrderID, ErrOrderInactive)
	}

	deposit, ok := mulU64(order.USDTTotal, m.params.SellerDepositRate)
	if !ok {
		return 0, ErrMathOverflow
	}
	deposit /= 100

	if err := m.escrow.Pull(seller, deposit); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientAllowance, err)
	}

	order.Active = false
	id := m.nextTradeID
	m.nextTradeID++
	m.trades[id] = &models.Trade{
		ID:            id,
		BuyOrderID:    buyOrderID,
		Buyer:         order.Buyer,
		Seller:        seller,
		XNMAmount:     order.XNMAmount,
		USDTAmount:    order.USDTTotal,
		BuyerDeposit:  order.BuyerDeposit,
		SellerDeposit: deposit,
		Status:        models.TradeActive,
		CreatedAt:     time.Now(),
	}

	m.emit(models.Event{Type: models.EventTradeMatched, TradeID: id, OrderID: buyOrderID, Amount: order.USDTTotal})
	return id, nil
}

// BuyOrderMatchSell fills a quantity within the range of an active sell
// order: the caller becomes the buyer and escrows the trade value plus the
// buyer deposit. The sell order is tombstoned and its full locked deposit
// moves into the trade; the unfilled remainder does not stay on the book.
func (m *Market) BuyOrderMatchSell(buyer string, sellOrderID, xnmAmount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.sellOrders[sellOrderID]
	if !ok {
		return 0, fmt.Errorf("sell order %d: %w", sellOrderID, ErrOrderNotFound)
	}
	if !order.Active {
		return 0, fmt.Errorf("sell order %d: %w", sellOrderID, ErrOrderInactive)
	}
	if xnmAmount < order.MinXNM || xnmAmount > order.MaxXNM {
		return 0, fmt.Errorf("amount %d outside [%d, %d]: %w", xnmAmount, order.MinXNM, order.MaxXNM, ErrRangeInvalid)
	}

	usdtTotal, ok := mulU64(xnmAmount, order.Price)
	if !ok {
		return 0, ErrMathOverflow
	}
	if usdtTotal < m.params.MinTradeAmount {
		return 0, fmt.Errorf("trade value %d: %w", usdtTotal, ErrBelowMinTradeAmount)
	}
	deposit, ok := mulU64(usdtTotal, m.params.BuyerDepositRate)
	if !ok {
		return 0, ErrMathOverflow
	}
	deposit /= 100

	if err := m.escrow.Pull(buyer, usdtTotal+deposit); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientAllowance, err)
	}

	order.Active = false
	id := m.nextTradeID
	m.nextTradeID++
	m.trades[id] = &models.Trade{
		ID:            id,
		SellOrderID:   sellOrderID,
		Buyer:         buyer,
		Seller:        order.Seller,
		XNMAmount:     xnmAmount,
		USDTAmount:    usdtTotal,
		BuyerDeposit:  deposit,
		SellerDeposit: order.SellerDeposit,
		Status:        models.TradeActive,
		CreatedAt:     time.Now(),
	}

	m.emit(models.Event{Type: models.EventTradeMatched, TradeID: id, OrderID: sellOrderID, Amount: usdtTotal})
	return id, nil
}

// CompleteTrade settles an active trade on the buyer's confirmation: the
// seller receives the trade value minus the tiered fee, the fee receiver the
// fee, and both deposits return to their owners. All four legs are computed
// before any executes; they land as a unit or not at all.
func (m *Market) CompleteTrade(caller string, tradeID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trade, ok := m.trades[tradeID]
	if !ok {
		return fmt.Errorf("trade %d: %w", tradeID, ErrTradeNotFound)
	}
	if trade.Status != models.TradeActive {
		return fmt.Errorf("trade %d: %w", tradeID, ErrTradeNotActive)
	}
	if trade.Buyer != caller {
		return ErrNotBuyer
	}

	volume := uint64(0)
	if s := m.sellerStats[trade.Seller]; s != nil {
		volume = s.LifetimeVolume
	}
	fee, err := Fee(m.feeTiers, volume, trade.USDTAmount)
	if err != nil {
		return err
	}

	legs := []ledger.Payout{
		{To: trade.Seller, Amount: trade.USDTAmount - fee},
		{To: m.params.FeeReceiver, Amount: fee},
		{To: trade.Buyer, Amount: trade.BuyerDeposit},
		{To: trade.Seller, Amount: trade.SellerDeposit},
	}
	if err := m.escrow.PushAll(legs); err != nil {
		return err
	}

	trade.Status = models.TradeCompleted
	m.accrueSellerVolume(trade.Seller, trade.USDTAmount, true)

	m.emit(models.Event{Type: models.EventTradeCompleted, TradeID: tradeID, Amount: fee})
	return nil
}

// ReleaseTrade is the arbitrator's forced resolution of an active trade. The
// proposed split must conserve the trade value exactly and the penalties must
// not exceed the locked deposits; otherwise the call fails with no mutation.
// Penalties go to the fee receiver, deposit remainders return to their
// owners, and the trade becomes Released.
func (m *Market) ReleaseTrade(caller string, tradeID, usdtToSeller, usdtToBuyer, sellerDepositPenalty, buyerDepositPenalty uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Owner {
		return ErrNotArbitrator
	}
	trade, ok := m.trades[tradeID]
	if !ok {
		return fmt.Errorf("trade %d: %w", tradeID, ErrTradeNotFound)
	}
	if trade.Status != models.TradeActive {
		return fmt.Errorf("trade %d: %w", tradeID, ErrTradeNotActive)
	}
	if usdtToSeller > trade.USDTAmount || usdtToBuyer != trade.USDTAmount-usdtToSeller {
		return fmt.Errorf("%d + %d != %d: %w", usdtToSeller, usdtToBuyer, trade.USDTAmount, ErrDistributionMismatch)
	}
	if sellerDepositPenalty > trade.SellerDeposit || buyerDepositPenalty > trade.BuyerDeposit {
		return fmt.Errorf("penalty exceeds deposit: %w", ErrDistributionMismatch)
	}

	legs := []ledger.Payout{
		{To: trade.Seller, Amount: usdtToSeller},
		{To: trade.Buyer, Amount: usdtToBuyer},
		{To: trade.Seller, Amount: trade.SellerDeposit - sellerDepositPenalty},
		{To: trade.Buyer, Amount: trade.BuyerDeposit - buyerDepositPenalty},
		{To: m.params.FeeReceiver, Amount: sellerDepositPenalty + buyerDepositPenalty},
	}
	if err := m.escrow.PushAll(legs); err != nil {
		return err
	}

	trade.Status = models.TradeReleased
	m.accrueSellerVolume(trade.Seller, usdtToSeller, false)

	m.emit(models.Event{Type: models.EventTradeReleased, TradeID: tradeID, Amount: usdtToSeller + usdtToBuyer})
	return nil
}
