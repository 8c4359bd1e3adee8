package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/xenmarket/market/internal/ledger"
	"github.com/xenmarket/market/internal/market"
	"github.com/xenmarket/market/internal/models"
)

const (
	owner       = "0xowner"
	feeReceiver = "0xfees"
	escrowAcct  = "0xescrow"
	alice       = "0xalice" // buyer
	bob         = "0xbob"   // seller
)

// Runs a full order/trade lifecycle against an in-process engine and prints
// the resulting balances.
func main() {
	log.SetLevel(log.WarnLevel)

	token := ledger.NewInMemoryToken()
	escrow := ledger.NewEscrow(token, escrowAcct)
	m := market.New(escrow, models.MarketParams{
		FeeReceiver:       feeReceiver,
		MinTradeAmount:    50,
		SellerDepositRate: 21,
		BuyerDepositRate:  5,
		Owner:             owner,
	}, log.StandardLogger())

	token.Mint(alice, 1_000)
	token.Mint(bob, 1_000)

	// Buyer posts: 200 XNM at price 1 -> value 200, deposit 10, escrows 210
	token.Approve(alice, escrowAcct, 210)
	buyID, err := m.CreateBuyOrder(alice, 200, 1, 7)
	must(err)
	fmt.Printf("buy order %d posted, escrow holds %d\n", buyID, escrow.Balance())

	// Seller matches: locks 21% of 200 = 42
	token.Approve(bob, escrowAcct, 42)
	tradeID, err := m.SellOrderMatchBuy(bob, buyID)
	must(err)
	fmt.Printf("trade %d matched, escrow holds %d\n", tradeID, escrow.Balance())

	// Buyer confirms delivery: first-tier fee 5% of 200 = 10
	must(m.CompleteTrade(alice, tradeID))
	fmt.Printf("trade %d completed\n", tradeID)
	fmt.Printf("  alice: %d\n", token.BalanceOf(alice))
	fmt.Printf("  bob:   %d\n", token.BalanceOf(bob))
	fmt.Printf("  fees:  %d\n", token.BalanceOf(feeReceiver))

	// Disputed path: seller posts a range order, buyer fills it, arbitrator
	// splits the escrow.
	token.Approve(bob, escrowAcct, 21)
	sellID, err := m.CreateSellOrder(bob, 1, 50, 100, 7)
	must(err)
	token.Approve(alice, escrowAcct, 105)
	tradeID, err = m.BuyOrderMatchSell(alice, sellID, 100)
	must(err)
	must(m.ReleaseTrade(owner, tradeID, 40, 60, 10, 2))
	fmt.Printf("trade %d released by arbitrator\n", tradeID)
	fmt.Printf("  alice: %d\n", token.BalanceOf(alice))
	fmt.Printf("  bob:   %d\n", token.BalanceOf(bob))
	fmt.Printf("  fees:  %d\n", token.BalanceOf(feeReceiver))
	fmt.Printf("  escrow residue: %d\n", escrow.Balance())
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}
