package signedtime

import "time"

// DivDuration divides numerator by denominator using binary search (unlike
// integers, time.Duration has no built-in division by another Duration).
// It returns (q, r) such that denominator*q + r == numerator and
// 0 <= r < denominator. denominator must be > 0.
func DivDuration(numerator, denominator time.Duration) (uint32, time.Duration) {
	var min uint32
	max := ^uint32(0)

	for max-min > 1 {
		mid := min + (max-min)/2
		product := denominator * time.Duration(mid)

		switch {
		case product == numerator:
			return mid, 0
		case product > numerator:
			max = mid
		default:
			min = mid
		}
	}

	return min, numerator - denominator*time.Duration(min)
}
