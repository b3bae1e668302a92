package matching

// QuantityMatch reports whether the verbally confirmed lot quantity covers
// the trade quantity. When the single trade leg exceeds the confirmed lots,
// the combined quantity of all legs sharing the order is tried, and finally
// the lots are scaled by the instrument's lot-size multiplier.
func QuantityMatch(tradeQty, lotQty, orderTotalQty, lotMultiplier float64) bool {
	if tradeQty <= 0 || lotQty <= 0 {
		return false
	}
	if tradeQty <= lotQty {
		return true
	}
	if orderTotalQty > 0 && orderTotalQty <= lotQty {
		return true
	}
	if lotMultiplier > 0 && tradeQty <= lotQty*lotMultiplier {
		return true
	}
	return false
}
