package services

import (
	"context"

	"github.com/campuspoints/points-engine/internal/model"
)

// EventService distributes an event's point pool to its guests. It
// never mutates balances directly: awards go through the ledger, inside
// one store transaction with the pool decrement, so a distribution
// either pays every targeted guest or none of them.
type EventService struct {
	users  UserDirectory
	events EventStore
	ledger *LedgerService
}

func NewEventService(users UserDirectory, events EventStore, ledger *LedgerService) *EventService {
	return &EventService{
		users:  users,
		events: events,
		ledger: ledger,
	}
}

// Distribute awards amountPerGuest points from the event's pool to the
// target: every RSVP'd guest, or one guest by utorid. Each guest is
// paid at most once per call; repeated calls are independent.
func (s *EventService) Distribute(ctx context.Context, actorUtorid string, eventID int64, target model.AwardTarget, amountPerGuest uint, remark string) ([]*model.Transaction, error) {
	if amountPerGuest == 0 {
		return nil, Validationf("amount per guest must be positive")
	}

	actor, err := s.ledger.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, err
	}
	event, err := s.ledger.resolveEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.authorizeEventActor(ctx, actor, event); err != nil {
		return nil, err
	}

	guests, err := s.resolveTarget(ctx, eventID, target)
	if err != nil {
		return nil, err
	}
	if len(guests) == 0 {
		return nil, Preconditionf("event %d has no RSVP'd guests", eventID)
	}

	total := amountPerGuest * uint(len(guests))

	var created []*model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledger.deductEventPool(ctx, eventID, total); err != nil {
			return err
		}
		for _, guest := range guests {
			txn, err := s.ledger.EventAward(ctx, actor, event, guest, amountPerGuest, remark)
			if err != nil {
				return err
			}
			created = append(created, txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, txn := range created {
		s.ledger.publishAudit(ctx, model.AuditCreated, txn)
	}
	return created, nil
}

func (s *EventService) resolveTarget(ctx context.Context, eventID int64, target model.AwardTarget) ([]*model.User, error) {
	if target.All() {
		return s.events.Guests(ctx, eventID)
	}

	guest, err := s.ledger.resolveUser(ctx, target.Utorid)
	if err != nil {
		return nil, err
	}
	return []*model.User{guest}, nil
}
