package market

import "github.com/xenmarket/market/internal/models"

const bpsDenominator = 10000

// DefaultFeeTiers is the stock settlement-fee schedule: 5% for new sellers,
// stepping down as lifetime completed volume grows.
func DefaultFeeTiers() []models.FeeTier {
	return []models.FeeTier{
		{MinVolume: 0, FeeBps: 500},
		{MinVolume: 10_000, FeeBps: 360},
		{MinVolume: 50_000, FeeBps: 270},
		{MinVolume: 100_000, FeeBps: 200},
	}
}

// Fee computes the settlement fee for a trade of tradeAmount given the
// seller's lifetime completed volume. Pure function; the tier applied is the
// highest threshold the volume has reached. Integer division rounds down.
func Fee(tiers []models.FeeTier, sellerVolume, tradeAmount uint64) (uint64, error) {
	var bps uint64
	for _, tier := range tiers {
		if sellerVolume >= tier.MinVolume {
			bps = tier.FeeBps
		}
	}
	scaled, ok := mulU64(tradeAmount, bps)
	if !ok {
		return 0, ErrMathOverflow
	}
	return scaled / bpsDenominator, nil
}

// validFeeTiers checks the schedule is non-empty, starts at zero volume,
// is strictly ascending and never exceeds 100%.
func validFeeTiers(tiers []models.FeeTier) bool {
	if len(tiers) == 0 || tiers[0].MinVolume != 0 {
		return false
	}
	for i, tier := range tiers {
		if tier.FeeBps > bpsDenominator {
			return false
		}
		if i > 0 && tier.MinVolume <= tiers[i-1].MinVolume {
			return false
		}
	}
	return true
}

// mulU64 multiplies with overflow detection.
func mulU64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/a != b {
		return 0, false
	}
	return p, true
}
