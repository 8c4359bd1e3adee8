package market

import (
	"testing"

	"github.com/xenmarket/market/internal/models"
)

func TestFee_TierBoundaries(t *testing.T) {
	tiers := DefaultFeeTiers()

	tests := []struct {
		name        string
		volume      uint64
		tradeAmount uint64
		expectFee   uint64
	}{
		{name: "NewSeller", volume: 0, tradeAmount: 200, expectFee: 10},
		{name: "JustBelowTier1", volume: 9_999, tradeAmount: 10_000, expectFee: 500},
		{name: "AtTier1", volume: 10_000, tradeAmount: 10_000, expectFee: 360},
		{name: "AtTier2", volume: 50_000, tradeAmount: 10_000, expectFee: 270},
		{name: "AtTier3", volume: 100_000, tradeAmount: 10_000, expectFee: 200},
		{name: "AboveTier3", volume: 1_000_000, tradeAmount: 10_000, expectFee: 200},
		{name: "RoundsDown", volume: 0, tradeAmount: 99, expectFee: 4}, // 99*500/10000 = 4.95
		{name: "ZeroAmount", volume: 0, tradeAmount: 0, expectFee: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := Fee(tiers, tt.volume, tt.tradeAmount)
			if err != nil {
				t.Fatalf("fee failed: %v", err)
			}
			if fee != tt.expectFee {
				t.Errorf("expected fee %d, got %d", tt.expectFee, fee)
			}
		})
	}
}

func TestFee_Overflow(t *testing.T) {
	tiers := []models.FeeTier{{MinVolume: 0, FeeBps: 500}}
	if _, err := Fee(tiers, 0, ^uint64(0)); err == nil {
		t.Error("expected overflow error for max trade amount")
	}
}

func TestValidFeeTiers(t *testing.T) {
	tests := []struct {
		name  string
		tiers []models.FeeTier
		valid bool
	}{
		{name: "Default", tiers: DefaultFeeTiers(), valid: true},
		{name: "Empty", tiers: nil, valid: false},
		{name: "MissingBase", tiers: []models.FeeTier{{MinVolume: 100, FeeBps: 500}}, valid: false},
		{name: "NotAscending", tiers: []models.FeeTier{{MinVolume: 0, FeeBps: 500}, {MinVolume: 0, FeeBps: 400}}, valid: false},
		{name: "RateOverflow", tiers: []models.FeeTier{{MinVolume: 0, FeeBps: 10_001}}, valid: false},
		{name: "SingleTier", tiers: []models.FeeTier{{MinVolume: 0, FeeBps: 0}}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validFeeTiers(tt.tiers); got != tt.valid {
				t.Errorf("expected valid=%v, got %v", tt.valid, got)
			}
		})
	}
}
