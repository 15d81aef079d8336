package repository

import (
	"context"
	"errors"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/pkg/pg"
)

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrPromotionClaimed  = errors.New("promotion already claimed")
)

type PromotionRepository struct {
	*pg.DB
}

func NewPromotionRepository(db *pg.DB) *PromotionRepository {
	return &PromotionRepository{
		db,
	}
}

// ListByIDs resolves candidate promotion ids. Unknown ids are simply
// absent from the result; the evaluator treats them as ineligible.
func (r *PromotionRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Promotion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entities []*PromotionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toPromotionModels(entities), nil
}

// Wallet returns the set of one-time promotion ids the user holds and
// has not yet consumed.
func (r *PromotionRepository) Wallet(ctx context.Context, userID int64) (map[int64]bool, error) {
	var rows []*PromotionWalletEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("user_id = ? AND used_at IS NULL", userID).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	wallet := make(map[int64]bool, len(rows))
	for _, row := range rows {
		wallet[row.PromotionID] = true
	}
	return wallet, nil
}

// Claim consumes a one-time promotion for a user. The used_at IS NULL
// guard is the compare-and-swap: of two concurrent purchases claiming
// the same promotion, exactly one sees an affected row. Must run inside
// the purchase's store transaction.
func (r *PromotionRepository) Claim(ctx context.Context, promotionID, userID, transactionID int64) error {
	now := time.Now()
	result := r.Write(ctx).WithContext(ctx).
		Model(&PromotionWalletEntity{}).
		Where("promotion_id = ? AND user_id = ? AND used_at IS NULL", promotionID, userID).
		Updates(map[string]interface{}{
			"used_at":        now,
			"transaction_id": transactionID,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPromotionClaimed
	}
	return nil
}

// Grant adds a one-time promotion to a user's wallet.
func (r *PromotionRepository) Grant(ctx context.Context, promotionID, userID int64) error {
	row := &PromotionWalletEntity{
		PromotionID: promotionID,
		UserID:      userID,
	}
	return r.Write(ctx).WithContext(ctx).Create(row).Error
}
