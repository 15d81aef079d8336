package services

import (
	"context"
	"errors"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/internal/repository"
	"github.com/campuspoints/points-engine/pkg/logger"
)

type UserDirectory interface {
	GetByUtorid(ctx context.Context, utorid string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetBalance(ctx context.Context, userID int64) (uint, error)
	AddPoints(ctx context.Context, userID int64, amount uint) error
	DeductPoints(ctx context.Context, userID int64, amount uint) error
	SetSuspicious(ctx context.Context, userID int64, suspicious bool) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionStore interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetByID(ctx context.Context, id int64) (*model.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	MarkProcessed(ctx context.Context, id int64, processedBy int64) error
	MarkApplied(ctx context.Context, id int64) error
	SetSuspicious(ctx context.Context, id int64, suspicious bool) error
	LinkRelated(ctx context.Context, id, relatedID int64) error
}

type EventStore interface {
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	DeductPool(ctx context.Context, eventID int64, total uint) error
	Guests(ctx context.Context, eventID int64) ([]*model.User, error)
	IsGuest(ctx context.Context, eventID, userID int64) (bool, error)
	IsOrganizer(ctx context.Context, eventID, userID int64) (bool, error)
}

type AuditPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// LedgerService is the authoritative balance-mutation engine. Every
// Apply runs as one store transaction: the ledger row and the balance
// delta commit together or not at all.
type LedgerService struct {
	users        UserDirectory
	transactions TransactionStore
	events       EventStore
	evaluator    *PromotionEvaluator
	promotions   PromotionStore
	audit        AuditPublisher
}

func NewLedgerService(users UserDirectory, transactions TransactionStore, promotions PromotionStore, events EventStore, audit AuditPublisher) *LedgerService {
	return &LedgerService{
		users:        users,
		transactions: transactions,
		events:       events,
		evaluator:    NewPromotionEvaluator(promotions),
		promotions:   promotions,
		audit:        audit,
	}
}

// Apply validates and executes one ledger mutation on behalf of actor.
// The request variants form a closed set; an unrecognized variant is an
// internal consistency failure, never a silent no-op.
func (s *LedgerService) Apply(ctx context.Context, actorUtorid string, req model.ApplyRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapf(KindValidation, err, "invalid %s request", req.Kind())
	}

	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, err
	}

	var txn *model.Transaction
	switch r := req.(type) {
	case model.PurchaseRequest:
		txn, err = s.applyPurchase(ctx, actor, r)
	case model.RedemptionRequest:
		txn, err = s.applyRedemption(ctx, actor, r)
	case model.TransferRequest:
		txn, err = s.applyTransfer(ctx, actor, r)
	case model.EventAwardRequest:
		txn, err = s.applyEventAward(ctx, actor, r)
	case model.AdjustmentRequest:
		txn, err = s.applyAdjustment(ctx, actor, r)
	default:
		return nil, Consistencyf("unhandled transaction kind %q", req.Kind())
	}
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, model.AuditCreated, txn)
	return txn, nil
}

func (s *LedgerService) applyPurchase(ctx context.Context, actor *model.User, req model.PurchaseRequest) (*model.Transaction, error) {
	if !actor.IsClerk() {
		return nil, Preconditionf("role %s may not record purchases", actor.Role)
	}

	receiver, err := s.resolveUser(ctx, req.ReceiverUtorid)
	if err != nil {
		return nil, err
	}
	if !receiver.Verified {
		return nil, Preconditionf("receiver account is not verified")
	}

	deferred := actor.Suspicious || receiver.Suspicious

	var created *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		eval, err := s.evaluator.Evaluate(ctx, EvaluateParams{
			UserID:            receiver.ID,
			Spent:             req.Spent,
			CandidateIDs:      req.PromotionIDs,
			Now:               time.Now(),
			RequireApplicable: req.RequirePromotion,
		})
		if err != nil {
			return err
		}

		amount := model.BasePoints(req.Spent) + eval.Bonus
		spent := req.Spent

		created, err = s.transactions.Create(ctx, &model.Transaction{
			Type:         model.TransactionPurchase,
			IssuerID:     actor.ID,
			ReceiverID:   receiver.ID,
			Amount:       int64(amount),
			Spent:        &spent,
			PromotionIDs: eval.AppliedIDs(),
			Suspicious:   deferred,
			Applied:      !deferred,
			Remark:       req.Remark,
		})
		if err != nil {
			return err
		}

		// One-time consumption rides the same store transaction as the
		// purchase it guards; a lost claim race rolls everything back.
		for _, promo := range eval.Applied {
			if promo.Kind != model.PromotionOneTime {
				continue
			}
			if err := s.promotions.Claim(ctx, promo.ID, receiver.ID, created.ID); err != nil {
				if errors.Is(err, repository.ErrPromotionClaimed) {
					return wrapf(KindConflict, err, "promotion %d claimed concurrently", promo.ID)
				}
				return err
			}
		}

		if deferred {
			return nil
		}
		return s.creditPoints(ctx, receiver.ID, amount)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *LedgerService) applyRedemption(ctx context.Context, actor *model.User, req model.RedemptionRequest) (*model.Transaction, error) {
	if actor.Utorid != req.Utorid && !actor.IsClerk() {
		return nil, Preconditionf("role %s may not redeem for another user", actor.Role)
	}

	user, err := s.resolveUser(ctx, req.Utorid)
	if err != nil {
		return nil, err
	}

	var created *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		// Request-time sufficiency check. The balance is not debited
		// here, so this is re-checked when the redemption is processed.
		balance, err := s.users.GetBalance(ctx, user.ID)
		if err != nil {
			return s.mapUserErr(err)
		}
		if balance < req.Amount {
			return Preconditionf("balance %d is less than requested %d", balance, req.Amount)
		}

		created, err = s.transactions.Create(ctx, &model.Transaction{
			Type:       model.TransactionRedemption,
			IssuerID:   user.ID,
			ReceiverID: user.ID,
			Amount:     -int64(req.Amount),
			Processed:  false,
			Applied:    false,
			Remark:     req.Remark,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ProcessRedemption is the second half of the redemption state machine:
// Requested -> Processed. Sufficiency is checked again here under a row
// lock; the request-time check is advisory only, because intervening
// transactions may have drained the balance.
func (s *LedgerService) ProcessRedemption(ctx context.Context, actorUtorid string, transactionID int64) (*model.Transaction, error) {
	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, err
	}
	if !actor.IsClerk() {
		return nil, Preconditionf("role %s may not process redemptions", actor.Role)
	}

	var processed *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return wrapf(KindNotFound, err, "transaction %d", transactionID)
			}
			return err
		}
		if txn.Type != model.TransactionRedemption {
			return Preconditionf("transaction %d is a %s, not a redemption", transactionID, txn.Type)
		}
		if txn.Processed {
			return Preconditionf("redemption %d already processed", transactionID)
		}

		amount := uint(-txn.Amount)
		if err := s.users.DeductPoints(ctx, txn.IssuerID, amount); err != nil {
			return s.mapUserErr(err)
		}

		if err := s.transactions.MarkProcessed(ctx, transactionID, actor.ID); err != nil {
			if errors.Is(err, repository.ErrAlreadyProcessed) {
				return wrapf(KindConflict, err, "redemption %d processed concurrently", transactionID)
			}
			return err
		}
		if err := s.transactions.MarkApplied(ctx, transactionID); err != nil {
			return err
		}

		txn.Processed = true
		txn.ProcessedBy = &actor.ID
		txn.Applied = true
		processed = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, model.AuditProcessed, processed)
	return processed, nil
}

func (s *LedgerService) applyTransfer(ctx context.Context, actor *model.User, req model.TransferRequest) (*model.Transaction, error) {
	if actor.Utorid != req.IssuerUtorid {
		return nil, Preconditionf("transfers may only be sent from the actor's own account")
	}
	if req.IssuerUtorid == req.ReceiverUtorid {
		return nil, Preconditionf("cannot transfer points to yourself")
	}

	issuer := actor
	receiver, err := s.resolveUser(ctx, req.ReceiverUtorid)
	if err != nil {
		return nil, err
	}

	var debit *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.DeductPoints(ctx, issuer.ID, req.Amount); err != nil {
			return s.mapUserErr(err)
		}

		debit, err = s.transactions.Create(ctx, &model.Transaction{
			Type:       model.TransactionTransfer,
			IssuerID:   issuer.ID,
			ReceiverID: receiver.ID,
			Amount:     -int64(req.Amount),
			Applied:    true,
			Remark:     req.Remark,
		})
		if err != nil {
			return err
		}

		credit, err := s.transactions.Create(ctx, &model.Transaction{
			Type:       model.TransactionTransfer,
			IssuerID:   issuer.ID,
			ReceiverID: receiver.ID,
			Amount:     int64(req.Amount),
			RelatedID:  &debit.ID,
			Applied:    true,
			Remark:     req.Remark,
		})
		if err != nil {
			return err
		}

		if debit.Amount+credit.Amount != 0 {
			return Consistencyf("transfer pair %d/%d sums to %d", debit.ID, credit.ID, debit.Amount+credit.Amount)
		}

		if err := s.transactions.LinkRelated(ctx, debit.ID, credit.ID); err != nil {
			return err
		}
		debit.RelatedID = &credit.ID

		return s.creditPoints(ctx, receiver.ID, req.Amount)
	})
	if err != nil {
		return nil, err
	}
	return debit, nil
}

// applyEventAward is the single-guest form of an event distribution.
func (s *LedgerService) applyEventAward(ctx context.Context, actor *model.User, req model.EventAwardRequest) (*model.Transaction, error) {
	event, err := s.resolveEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEventActor(ctx, actor, event); err != nil {
		return nil, err
	}

	guest, err := s.resolveUser(ctx, req.GuestUtorid)
	if err != nil {
		return nil, err
	}

	var created *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.deductEventPool(ctx, event.ID, req.Amount); err != nil {
			return err
		}
		created, err = s.EventAward(ctx, actor, event, guest, req.Amount, req.Remark)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EventAward writes one event transaction and credits the guest. The
// caller owns the store transaction and must have reserved the points
// from the event pool already; the Event Point Distributor uses this to
// award a whole guest list atomically.
func (s *LedgerService) EventAward(ctx context.Context, actor *model.User, event *model.Event, guest *model.User, amount uint, remark string) (*model.Transaction, error) {
	isGuest, err := s.events.IsGuest(ctx, event.ID, guest.ID)
	if err != nil {
		return nil, err
	}
	if !isGuest {
		return nil, Preconditionf("user %s is not a guest of event %d", guest.Utorid, event.ID)
	}

	deferred := actor.Suspicious || guest.Suspicious
	eventID := event.ID

	created, err := s.transactions.Create(ctx, &model.Transaction{
		Type:       model.TransactionEvent,
		IssuerID:   actor.ID,
		ReceiverID: guest.ID,
		Amount:     int64(amount),
		EventID:    &eventID,
		Suspicious: deferred,
		Applied:    !deferred,
		Remark:     remark,
	})
	if err != nil {
		return nil, err
	}

	if !deferred {
		if err := s.creditPoints(ctx, guest.ID, amount); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (s *LedgerService) applyAdjustment(ctx context.Context, actor *model.User, req model.AdjustmentRequest) (*model.Transaction, error) {
	if !actor.IsManager() {
		return nil, Preconditionf("role %s may not create adjustments", actor.Role)
	}

	user, err := s.resolveUser(ctx, req.Utorid)
	if err != nil {
		return nil, err
	}

	if req.RelatedID != nil {
		if _, err := s.transactions.GetByID(ctx, *req.RelatedID); err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return nil, wrapf(KindNotFound, err, "related transaction %d", *req.RelatedID)
			}
			return nil, err
		}
	}

	deferred := actor.Suspicious || user.Suspicious

	var created *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		created, err = s.transactions.Create(ctx, &model.Transaction{
			Type:       model.TransactionAdjustment,
			IssuerID:   actor.ID,
			ReceiverID: user.ID,
			Amount:     req.Amount,
			RelatedID:  req.RelatedID,
			Suspicious: deferred,
			Applied:    !deferred,
			Remark:     req.Remark,
		})
		if err != nil {
			return err
		}

		if deferred {
			return nil
		}
		return s.applyDelta(ctx, user.ID, req.Amount)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReprocessTransaction replays the deferred balance effect of a
// transaction recorded while its actor was flagged suspicious. The
// receiver's flag must be cleared first.
func (s *LedgerService) ReprocessTransaction(ctx context.Context, actorUtorid string, transactionID int64) (*model.Transaction, error) {
	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, err
	}
	if !actor.IsManager() {
		return nil, Preconditionf("role %s may not reprocess transactions", actor.Role)
	}

	var replayed *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return wrapf(KindNotFound, err, "transaction %d", transactionID)
			}
			return err
		}
		if txn.Type == model.TransactionRedemption {
			return Preconditionf("redemptions are applied through processing, not replay")
		}
		if txn.Applied {
			return Preconditionf("transaction %d effect already applied", transactionID)
		}

		receiver, err := s.users.GetByID(ctx, txn.ReceiverID)
		if err != nil {
			return s.mapUserErr(err)
		}
		if receiver.Suspicious {
			return Preconditionf("user %s is still flagged suspicious", receiver.Utorid)
		}

		if err := s.applyDelta(ctx, txn.ReceiverID, txn.Amount); err != nil {
			return err
		}
		if err := s.transactions.MarkApplied(ctx, transactionID); err != nil {
			if errors.Is(err, repository.ErrAlreadyApplied) {
				return wrapf(KindConflict, err, "transaction %d replayed concurrently", transactionID)
			}
			return err
		}

		txn.Applied = true
		replayed = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, model.AuditReplayed, replayed)
	return replayed, nil
}

// FlagTransaction marks or clears the suspicious flag on a ledger row.
func (s *LedgerService) FlagTransaction(ctx context.Context, actorUtorid string, transactionID int64, suspicious bool) (*model.Transaction, error) {
	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, err
	}
	if !actor.IsManager() {
		return nil, Preconditionf("role %s may not flag transactions", actor.Role)
	}

	if err := s.transactions.SetSuspicious(ctx, transactionID, suspicious); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, wrapf(KindNotFound, err, "transaction %d", transactionID)
		}
		return nil, err
	}

	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	s.publishAudit(ctx, model.AuditFlagged, txn)
	return txn, nil
}

// FlagUser marks or clears the suspicious flag on a user account.
func (s *LedgerService) FlagUser(ctx context.Context, actorUtorid, utorid string, suspicious bool) error {
	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return err
	}
	if !actor.IsManager() {
		return Preconditionf("role %s may not flag users", actor.Role)
	}

	user, err := s.resolveUser(ctx, utorid)
	if err != nil {
		return err
	}
	return s.users.SetSuspicious(ctx, user.ID, suspicious)
}

// History lists ledger rows. Non-managers only see their own.
func (s *LedgerService) History(ctx context.Context, actorUtorid string, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	actor, err := s.resolveUser(ctx, actorUtorid)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsManager() {
		f.UserID = &actor.ID
	}
	return s.transactions.List(ctx, f)
}

func (s *LedgerService) Balance(ctx context.Context, utorid string) (uint, error) {
	user, err := s.resolveUser(ctx, utorid)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

/* ------------------------------ internals ------------------------------ */

func (s *LedgerService) resolveUser(ctx context.Context, utorid string) (*model.User, error) {
	if utorid == "" {
		return nil, Validationf("utorid is required")
	}
	user, err := s.users.GetByUtorid(ctx, utorid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, wrapf(KindNotFound, err, "user %s", utorid)
		}
		return nil, err
	}
	if !user.Activated {
		return nil, Preconditionf("user %s is deactivated", utorid)
	}
	return user, nil
}

func (s *LedgerService) resolveEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, wrapf(KindNotFound, err, "event %d", eventID)
		}
		return nil, err
	}
	return event, nil
}

func (s *LedgerService) authorizeEventActor(ctx context.Context, actor *model.User, event *model.Event) error {
	if actor.IsManager() {
		return nil
	}
	isOrganizer, err := s.events.IsOrganizer(ctx, event.ID, actor.ID)
	if err != nil {
		return err
	}
	if !isOrganizer {
		return Preconditionf("user %s is not an organizer of event %d", actor.Utorid, event.ID)
	}
	return nil
}

func (s *LedgerService) deductEventPool(ctx context.Context, eventID int64, total uint) error {
	if err := s.events.DeductPool(ctx, eventID, total); err != nil {
		switch {
		case errors.Is(err, repository.ErrPoolExhausted):
			return wrapf(KindPrecondition, err, "event %d pool cannot cover %d points", eventID, total)
		case errors.Is(err, repository.ErrEventNotFound):
			return wrapf(KindNotFound, err, "event %d", eventID)
		}
		return err
	}
	return nil
}

func (s *LedgerService) creditPoints(ctx context.Context, userID int64, amount uint) error {
	if amount == 0 {
		return nil
	}
	if err := s.users.AddPoints(ctx, userID, amount); err != nil {
		return s.mapUserErr(err)
	}
	return nil
}

func (s *LedgerService) applyDelta(ctx context.Context, userID, amount int64) error {
	switch {
	case amount > 0:
		return s.creditPoints(ctx, userID, uint(amount))
	case amount < 0:
		if err := s.users.DeductPoints(ctx, userID, uint(-amount)); err != nil {
			return s.mapUserErr(err)
		}
	}
	return nil
}

func (s *LedgerService) mapUserErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		return wrapf(KindPrecondition, err, "insufficient balance")
	case errors.Is(err, repository.ErrUserNotFound):
		return wrapf(KindNotFound, err, "user")
	case errors.Is(err, repository.ErrConcurrentUpdate), errors.Is(err, repository.ErrMaxRetriesExceeded):
		return wrapf(KindConflict, err, "concurrent balance update")
	}
	return err
}

// publishAudit emits a post-commit audit event. Publishing is
// best-effort: the ledger mutation is already durable, so a queue
// failure is logged and swallowed rather than surfaced to the caller.
func (s *LedgerService) publishAudit(ctx context.Context, action model.AuditAction, txn *model.Transaction) {
	if s.audit == nil || txn == nil {
		return
	}
	event := model.NewAuditEvent(action, txn)
	if _, err := s.audit.PublishJSON(ctx, event, nil); err != nil {
		logger.Warn("failed to publish audit event",
			"action", string(action),
			"transaction_id", txn.ID,
			"error", err,
		)
	}
}
