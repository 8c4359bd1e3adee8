package market

import "errors"

// Business-rule rejections. Callers discriminate with errors.Is; ledger-level
// failures are wrapped so the underlying cause stays visible.
var (
	ErrBelowMinTradeAmount   = errors.New("below min trade amount")
	ErrRangeInvalid          = errors.New("invalid amount range")
	ErrInsufficientAllowance = errors.New("not enough allowance")
	ErrNotOwner              = errors.New("caller is not the order owner")
	ErrNotBuyer              = errors.New("caller is not the trade buyer")
	ErrNotSeller             = errors.New("caller is not the order seller")
	ErrNotArbitrator         = errors.New("caller is not the arbitrator")
	ErrOrderInactive         = errors.New("order is not active")
	ErrTradeNotActive        = errors.New("trade is not active")
	ErrDistributionMismatch  = errors.New("distribution does not conserve trade value")
	ErrMarketPaused          = errors.New("new orders are paused")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrMathOverflow          = errors.New("math overflow")
	ErrOrderNotFound         = errors.New("order not found")
	ErrTradeNotFound         = errors.New("trade not found")
	ErrFeeTiersInvalid       = errors.New("invalid fee tier schedule")
)
