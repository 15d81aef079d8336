package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrentUpdate    = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) GetByUtorid(ctx context.Context, utorid string) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("utorid = ?", utorid).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

// DeductPoints performs an atomic balance deduction with automatic retry
// on transient errors. Used for redemption processing, transfer debits
// and negative adjustments.
func (r *UserRepository) DeductPoints(ctx context.Context, userID int64, amount uint) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.deductPointsAttempt(ctx, userID, amount)

		if err == nil {
			return nil
		}

		// Don't retry on permanent errors
		if errors.Is(err, ErrUserNotFound) ||
			errors.Is(err, ErrInsufficientBalance) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *UserRepository) deductPointsAttempt(ctx context.Context, userID int64, amount uint) error {
	var entity UserEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if entity.Balance < amount {
		return ErrInsufficientBalance
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

// AddPoints performs an atomic balance credit using SELECT FOR UPDATE.
// Used for purchase awards, transfer credits, event awards and positive
// adjustments.
func (r *UserRepository) AddPoints(ctx context.Context, userID int64, amount uint) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.addPointsAttempt(ctx, userID, amount)

		if err == nil {
			return nil
		}

		if errors.Is(err, ErrUserNotFound) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *UserRepository) addPointsAttempt(ctx context.Context, userID int64, amount uint) error {
	var entity UserEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) GetBalance(ctx context.Context, userID int64) (uint, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("balance").
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	return entity.Balance, nil
}

// SetSuspicious flips the review flag on a user account.
func (r *UserRepository) SetSuspicious(ctx context.Context, userID int64, suspicious bool) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("suspicious", suspicious)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
