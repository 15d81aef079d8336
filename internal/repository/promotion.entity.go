package repository

import (
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
)

type PromotionEntity struct {
	ID          int64            `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Name        string           `db:"name"         gorm:"column:name;not null"`
	Kind        string           `db:"kind"         gorm:"column:kind;not null;index"`
	StartsAt    time.Time        `db:"starts_at"    gorm:"column:starts_at;not null"`
	EndsAt      time.Time        `db:"ends_at"      gorm:"column:ends_at;not null"`
	MinSpending *decimal.Decimal `db:"min_spending" gorm:"column:min_spending;type:numeric(12,2)"`
	Points      uint             `db:"points"       gorm:"column:points;not null;default:0"`
	Rate        *decimal.Decimal `db:"rate"         gorm:"column:rate;type:numeric(8,4)"`
}

func (PromotionEntity) TableName() string {
	return "promotions"
}

// PromotionWalletEntity is one one-time promotion held by one user. The
// unique (promotion_id, user_id) pair is what makes consumption a
// compare-and-swap rather than a read-check-write.
type PromotionWalletEntity struct {
	ID            int64      `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	PromotionID   int64      `db:"promotion_id"   gorm:"column:promotion_id;not null;uniqueIndex:idx_promo_user"`
	UserID        int64      `db:"user_id"        gorm:"column:user_id;not null;uniqueIndex:idx_promo_user"`
	GrantedAt     time.Time  `db:"granted_at"     gorm:"column:granted_at;autoCreateTime"`
	UsedAt        *time.Time `db:"used_at"        gorm:"column:used_at"`
	TransactionID *int64     `db:"transaction_id" gorm:"column:transaction_id"`
}

func (PromotionWalletEntity) TableName() string {
	return "promotion_wallet"
}

func toPromotionEntity(m *model.Promotion) *PromotionEntity {
	if m == nil {
		return nil
	}
	return &PromotionEntity{
		ID:          m.ID,
		Name:        m.Name,
		Kind:        string(m.Kind),
		StartsAt:    m.StartsAt,
		EndsAt:      m.EndsAt,
		MinSpending: m.MinSpending,
		Points:      m.Points,
		Rate:        m.Rate,
	}
}

func toPromotionModel(e *PromotionEntity) *model.Promotion {
	if e == nil {
		return nil
	}
	return &model.Promotion{
		ID:          e.ID,
		Name:        e.Name,
		Kind:        model.PromotionKind(e.Kind),
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		MinSpending: e.MinSpending,
		Points:      e.Points,
		Rate:        e.Rate,
	}
}

func toPromotionModels(entities []*PromotionEntity) []*model.Promotion {
	if entities == nil {
		return nil
	}
	models := make([]*model.Promotion, len(entities))
	for i, e := range entities {
		models[i] = toPromotionModel(e)
	}
	return models
}
