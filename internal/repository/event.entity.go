package repository

import (
	"time"

	"github.com/campuspoints/points-engine/internal/model"
)

type EventEntity struct {
	ID           int64     `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	Name         string    `db:"name"          gorm:"column:name;not null"`
	Capacity     *int      `db:"capacity"      gorm:"column:capacity"`
	PointsRemain uint      `db:"points_remain" gorm:"column:points_remain;not null;default:0"`
	Published    bool      `db:"published"     gorm:"column:published;not null;default:false"`
	StartsAt     time.Time `db:"starts_at"     gorm:"column:starts_at;not null"`
	EndsAt       time.Time `db:"ends_at"       gorm:"column:ends_at;not null"`
}

func (EventEntity) TableName() string {
	return "events"
}

type EventGuestEntity struct {
	ID      int64 `db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	EventID int64 `db:"event_id" gorm:"column:event_id;not null;uniqueIndex:idx_event_guest"`
	UserID  int64 `db:"user_id"  gorm:"column:user_id;not null;uniqueIndex:idx_event_guest"`
}

func (EventGuestEntity) TableName() string {
	return "event_guests"
}

type EventOrganizerEntity struct {
	ID      int64 `db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	EventID int64 `db:"event_id" gorm:"column:event_id;not null;uniqueIndex:idx_event_organizer"`
	UserID  int64 `db:"user_id"  gorm:"column:user_id;not null;uniqueIndex:idx_event_organizer"`
}

func (EventOrganizerEntity) TableName() string {
	return "event_organizers"
}

func toEventEntity(m *model.Event) *EventEntity {
	if m == nil {
		return nil
	}
	return &EventEntity{
		ID:           m.ID,
		Name:         m.Name,
		Capacity:     m.Capacity,
		PointsRemain: m.PointsRemain,
		Published:    m.Published,
		StartsAt:     m.StartsAt,
		EndsAt:       m.EndsAt,
	}
}

func toEventModel(e *EventEntity) *model.Event {
	if e == nil {
		return nil
	}
	return &model.Event{
		ID:           e.ID,
		Name:         e.Name,
		Capacity:     e.Capacity,
		PointsRemain: e.PointsRemain,
		Published:    e.Published,
		StartsAt:     e.StartsAt,
		EndsAt:       e.EndsAt,
	}
}
