package model

import "github.com/shopspring/decimal"

// PointsPerDollar is the base earn rate: 1 point per $0.25 spent.
const PointsPerDollar = 4

var pointsPerDollar = decimal.NewFromInt(PointsPerDollar)

// BasePoints computes the points earned on a purchase before any
// promotion, rounding half up.
func BasePoints(spent decimal.Decimal) uint {
	pts := spent.Mul(pointsPerDollar).Round(0).IntPart()
	if pts < 0 {
		return 0
	}
	return uint(pts)
}

// RateBonus computes the promotional bonus for a rate promotion. The
// rate is a fraction of the spend, scaled by the same points-per-dollar
// multiplier as BasePoints, and rounded up. This mirrors the seeded
// campaign arithmetic: a 10% promotion on a $25.00 purchase yields
// ceil(25 * 0.10 * 4) = 10 points.
func RateBonus(spent, rate decimal.Decimal) uint {
	pts := spent.Mul(rate).Mul(pointsPerDollar).Ceil().IntPart()
	if pts < 0 {
		return 0
	}
	return uint(pts)
}
