package services

import (
	"context"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
)

type PromotionStore interface {
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Promotion, error)
	Wallet(ctx context.Context, userID int64) (map[int64]bool, error)
	Claim(ctx context.Context, promotionID, userID, transactionID int64) error
}

// PromotionEvaluator decides which candidate promotions apply to a
// purchase and what bonus they contribute. It never mutates state;
// consumption of one-time promotions is the ledger's job, inside the
// purchase's store transaction.
type PromotionEvaluator struct {
	promotions PromotionStore
}

func NewPromotionEvaluator(promotions PromotionStore) *PromotionEvaluator {
	return &PromotionEvaluator{
		promotions: promotions,
	}
}

type EvaluateParams struct {
	UserID       int64
	Spent        decimal.Decimal
	CandidateIDs []int64
	Now          time.Time
	// RequireApplicable makes a purchase with zero resolving candidates
	// a precondition failure instead of a plain base-rate purchase.
	RequireApplicable bool
}

// Evaluate resolves the candidate ids and returns the applicable
// promotions with their combined bonus. Unknown ids, expired windows,
// unmet minimum spends and already-consumed one-time promotions are
// silently excluded.
func (e *PromotionEvaluator) Evaluate(ctx context.Context, p EvaluateParams) (*model.EvaluationResult, error) {
	result := &model.EvaluationResult{}

	if len(p.CandidateIDs) == 0 {
		if p.RequireApplicable {
			return nil, Preconditionf("no promotion supplied")
		}
		return result, nil
	}

	promos, err := e.promotions.ListByIDs(ctx, dedupe(p.CandidateIDs))
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Promotion, len(promos))
	hasOneTime := false
	for _, promo := range promos {
		byID[promo.ID] = promo
		if promo.Kind == model.PromotionOneTime {
			hasOneTime = true
		}
	}

	var wallet map[int64]bool
	if hasOneTime {
		wallet, err = e.promotions.Wallet(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[int64]bool, len(p.CandidateIDs))
	for _, id := range p.CandidateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		promo, ok := byID[id]
		if !ok {
			continue // unknown id, dropped
		}
		if !promo.ActiveAt(p.Now) {
			continue
		}

		switch promo.Kind {
		case model.PromotionAutomatic:
			// Minimum spend binds automatic promotions only; a held
			// one-time promotion applies regardless of spend.
			if promo.MinSpending != nil && p.Spent.Cmp(*promo.MinSpending) < 0 {
				continue
			}
		case model.PromotionOneTime:
			if !wallet[promo.ID] {
				continue // not held, or already consumed
			}
		default:
			return nil, Consistencyf("unknown promotion kind %q", promo.Kind)
		}

		result.Applied = append(result.Applied, promo)
		result.Bonus += promo.Bonus(p.Spent)
	}

	if len(result.Applied) == 0 && p.RequireApplicable {
		return nil, Preconditionf("none of the supplied promotions are applicable")
	}

	return result, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
