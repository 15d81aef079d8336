package model

import "time"

type Event struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Capacity     *int      `json:"capacity,omitempty"` // nil = unlimited
	PointsRemain uint      `json:"points_remain"`
	Published    bool      `json:"published"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// AwardTarget selects the recipients of an event point distribution:
// every RSVP'd guest, or a single guest by utorid.
type AwardTarget struct {
	Utorid string
}

// All reports whether the target is the full guest list.
func (t AwardTarget) All() bool { return t.Utorid == "" }

// AllGuests targets every RSVP'd guest.
func AllGuests() AwardTarget { return AwardTarget{} }

// Guest targets a single RSVP'd guest.
func Guest(utorid string) AwardTarget { return AwardTarget{Utorid: utorid} }
