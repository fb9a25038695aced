package allocation

import "ms-raffle/internal/config"

// BonusFor returns the free tickets earned by buying quantity tickets. The
// highest threshold reached wins; tiers need not be sorted.
func BonusFor(quantity int, tiers []config.BonusTier) int {
	bonus, best := 0, 0
	for _, tier := range tiers {
		if tier.Threshold > 0 && quantity >= tier.Threshold && tier.Threshold >= best {
			best = tier.Threshold
			bonus = tier.Bonus
		}
	}
	if bonus < 0 {
		return 0
	}
	return bonus
}
