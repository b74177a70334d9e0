// Package money holds amounts in integer minor units so that fee and stay
// arithmetic is exact.
package money

import (
	"fmt"
	"math"
)

// Money is an amount in minor units (cents).
type Money int64

// Times returns m*n and fails on overflow.
func (m Money) Times(n int) (Money, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative multiplier %d", n)
	}
	if n != 0 && int64(m) > math.MaxInt64/int64(n) {
		return 0, fmt.Errorf("amount overflow: %d x %d", m, n)
	}
	return m * Money(n), nil
}

func (m Money) Negative() bool { return m < 0 }

// String renders major.minor with two decimals, e.g. 1050 -> "10.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
