package repository

import (
	"context"
	"errors"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrPoolExhausted = errors.New("event point pool exhausted")
)

type EventRepository struct {
	*pg.DB
}

func NewEventRepository(db *pg.DB) *EventRepository {
	return &EventRepository{
		db,
	}
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var entity EventEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return toEventModel(&entity), nil
}

// DeductPool atomically checks and decrements the event's remaining
// point pool. The row lock serializes concurrent distributions so the
// pool can never go negative. Must run inside the distribution's store
// transaction so a failed guest award rolls the decrement back.
func (r *EventRepository) DeductPool(ctx context.Context, eventID int64, total uint) error {
	var entity EventEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		return err
	}

	if entity.PointsRemain < total {
		return ErrPoolExhausted
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&EventEntity{}).
		Where("id = ?", eventID).
		Update("points_remain", gorm.Expr("points_remain - ?", total))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Guests returns the RSVP'd users of an event ordered by utorid.
func (r *EventRepository) Guests(ctx context.Context, eventID int64) ([]*model.User, error) {
	var entities []*UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Joins("JOIN event_guests ON event_guests.user_id = users.id").
		Where("event_guests.event_id = ?", eventID).
		Order("users.utorid ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toUserModels(entities), nil
}

func (r *EventRepository) IsGuest(ctx context.Context, eventID, userID int64) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&EventGuestEntity{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *EventRepository) IsOrganizer(ctx context.Context, eventID, userID int64) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&EventOrganizerEntity{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
