package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromotionKind distinguishes always-on promotions from single-use ones.
type PromotionKind string

const (
	PromotionAutomatic PromotionKind = "automatic"
	PromotionOneTime   PromotionKind = "one_time"
)

type Promotion struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Kind        PromotionKind    `json:"kind"`
	StartsAt    time.Time        `json:"starts_at"`
	EndsAt      time.Time        `json:"ends_at"`
	MinSpending *decimal.Decimal `json:"min_spending,omitempty"`
	Points      uint             `json:"points"`         // flat bonus
	Rate        *decimal.Decimal `json:"rate,omitempty"` // fraction, e.g. 0.05 = 5%
}

// ActiveAt reports whether now falls inside the half-open validity
// window [starts_at, ends_at).
func (p *Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// Bonus computes the points this promotion contributes to a purchase of
// the given spend. The flat and rate parts are independent; the rate
// part is scaled by the same points-per-dollar multiplier as base
// purchase points and rounded up.
func (p *Promotion) Bonus(spent decimal.Decimal) uint {
	bonus := uint64(p.Points)
	if p.Rate != nil && p.Rate.IsPositive() {
		bonus += uint64(RateBonus(spent, *p.Rate))
	}
	return uint(bonus)
}

// EvaluationResult is the outcome of promotion evaluation for one
// candidate purchase.
type EvaluationResult struct {
	Applied []*Promotion
	Bonus   uint
}

// AppliedIDs lists the ids of the applied promotions in evaluation order.
func (r *EvaluationResult) AppliedIDs() []int64 {
	if len(r.Applied) == 0 {
		return nil
	}
	ids := make([]int64, len(r.Applied))
	for i, p := range r.Applied {
		ids[i] = p.ID
	}
	return ids
}
