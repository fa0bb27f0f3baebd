package service

// Price bands for the minimum bid step
const (
	highTierFloor = 50000
	midTierFloor  = 20000

	highTierIncrement = 5000
	midTierIncrement  = 2000
	baseIncrement     = 1000
)

// RequiredIncrement returns the minimum step above the current price.
// The band is chosen by the current price, never by the offered amount.
func RequiredIncrement(currentPrice int64) int64 {
	switch {
	case currentPrice >= highTierFloor:
		return highTierIncrement
	case currentPrice >= midTierFloor:
		return midTierIncrement
	default:
		return baseIncrement
	}
}

// MinimumBid is the lowest amount accepted against currentPrice
func MinimumBid(currentPrice int64) int64 {
	return currentPrice + RequiredIncrement(currentPrice)
}
