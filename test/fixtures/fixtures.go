package fixtures

import (
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
)

var (
	TestRegular = model.User{
		ID:        1,
		Utorid:    "student1",
		Role:      model.RoleRegular,
		Balance:   100,
		Verified:  true,
		Activated: true,
	}

	TestCashier = model.User{
		ID:        2,
		Utorid:    "cashier1",
		Role:      model.RoleCashier,
		Balance:   0,
		Verified:  true,
		Activated: true,
	}

	TestManager = model.User{
		ID:        3,
		Utorid:    "manager1",
		Role:      model.RoleManager,
		Balance:   0,
		Verified:  true,
		Activated: true,
	}

	TestSuspicious = model.User{
		ID:         4,
		Utorid:     "shady1",
		Role:       model.RoleRegular,
		Balance:    50,
		Verified:   true,
		Suspicious: true,
		Activated:  true,
	}

	TestZeroBalance = model.User{
		ID:        5,
		Utorid:    "broke1",
		Role:      model.RoleRegular,
		Balance:   0,
		Verified:  true,
		Activated: true,
	}
)

func NewPurchaseRequest(utorid string, spent string, promotionIDs ...int64) model.PurchaseRequest {
	return model.PurchaseRequest{
		ReceiverUtorid: utorid,
		Spent:          decimal.RequireFromString(spent),
		PromotionIDs:   promotionIDs,
	}
}

func NewRedemptionRequest(utorid string, amount uint) model.RedemptionRequest {
	return model.RedemptionRequest{
		Utorid: utorid,
		Amount: amount,
	}
}

func NewTransferRequest(issuer, receiver string, amount uint) model.TransferRequest {
	return model.TransferRequest{
		IssuerUtorid:   issuer,
		ReceiverUtorid: receiver,
		Amount:         amount,
	}
}

func NewAutomaticPromotion(id int64, rate string, minSpending string) *model.Promotion {
	r := decimal.RequireFromString(rate)
	promo := &model.Promotion{
		ID:       id,
		Name:     "automatic promo",
		Kind:     model.PromotionAutomatic,
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
		Rate:     &r,
	}
	if minSpending != "" {
		m := decimal.RequireFromString(minSpending)
		promo.MinSpending = &m
	}
	return promo
}

func NewOneTimePromotion(id int64, points uint) *model.Promotion {
	return &model.Promotion{
		ID:       id,
		Name:     "one-time promo",
		Kind:     model.PromotionOneTime,
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
		Points:   points,
	}
}

func ExpiredPromotion(id int64, points uint) *model.Promotion {
	return &model.Promotion{
		ID:       id,
		Name:     "expired promo",
		Kind:     model.PromotionOneTime,
		StartsAt: time.Now().Add(-48 * time.Hour),
		EndsAt:   time.Now().Add(-24 * time.Hour),
		Points:   points,
	}
}

func NewEvent(id int64, poolPoints uint) *model.Event {
	return &model.Event{
		ID:           id,
		Name:         "orientation night",
		PointsRemain: poolPoints,
		Published:    true,
		StartsAt:     time.Now().Add(-time.Hour),
		EndsAt:       time.Now().Add(time.Hour),
	}
}
