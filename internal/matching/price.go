package matching

import "math"

// priceBand is the tolerance band for one price tier. Tolerance widens as
// price increases.
type priceBand struct {
	floor float64 // tier lower price bound (inclusive)
	lower float64
	upper float64
}

// priceBands is ordered by descending tier floor so the first hit wins.
var priceBands = []priceBand{
	{floor: 7500, lower: 11, upper: 15},
	{floor: 5000, lower: 6, upper: 10},
	{floor: 2500, lower: 3, upper: 6},
	{floor: 1250, lower: 2, upper: 4},
	{floor: 650, lower: 0.90, upper: 2},
	{floor: 300, lower: 0.45, upper: 1},
	{floor: 0, lower: 0.05, upper: 0.45},
}

// tolerance returns the (lower, upper) tolerance band for a price.
func tolerance(price float64) (float64, float64) {
	for _, b := range priceBands {
		if price >= b.floor {
			return b.lower, b.upper
		}
	}
	return 0, 0
}

// PriceMatch reports whether a trade price and an aggregated conversation
// price agree. The band is applied from both centers (trade-price-centered
// and conversation-price-centered) and either side satisfying its bound
// counts, so the effective tolerance is the sum of the two upper bounds,
// strict at the boundary.
func PriceMatch(tradePrice, convPrice float64) bool {
	if tradePrice <= 0 || convPrice <= 0 {
		return false
	}
	_, upperTrade := tolerance(tradePrice)
	_, upperConv := tolerance(convPrice)
	return math.Abs(tradePrice-convPrice) < upperTrade+upperConv
}
