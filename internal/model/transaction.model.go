package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of a ledger transaction.
type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionRedemption TransactionType = "redemption"
	TransactionTransfer   TransactionType = "transfer"
	TransactionEvent      TransactionType = "event"
	TransactionAdjustment TransactionType = "adjustment"
)

// Transaction is one row of the points ledger. Rows are immutable once
// written except for the processed, suspicious and applied flags.
type Transaction struct {
	ID           int64            `json:"id"`
	Type         TransactionType  `json:"type"`
	IssuerID     int64            `json:"issuer_id"`
	ReceiverID   int64            `json:"receiver_id"`
	Amount       int64            `json:"amount"`
	Spent        *decimal.Decimal `json:"spent,omitempty"`
	PromotionIDs []int64          `json:"promotion_ids,omitempty"`
	EventID      *int64           `json:"event_id,omitempty"`
	RelatedID    *int64           `json:"related_id,omitempty"`
	Processed    bool             `json:"processed"`
	ProcessedBy  *int64           `json:"processed_by,omitempty"`
	Suspicious   bool             `json:"suspicious"`
	Applied      bool             `json:"applied"`
	Remark       string           `json:"remark,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ApplyRequest is the closed set of ledger mutations. Each transaction
// kind carries exactly the fields valid for that kind; the ledger
// switches over the concrete type.
type ApplyRequest interface {
	Kind() TransactionType
	Validate() error
}

type PurchaseRequest struct {
	ReceiverUtorid string
	Spent          decimal.Decimal
	PromotionIDs   []int64
	// RequirePromotion rejects the purchase when none of the supplied
	// promotion ids resolve to an applicable promotion.
	RequirePromotion bool
	Remark           string
}

func (PurchaseRequest) Kind() TransactionType { return TransactionPurchase }

func (r PurchaseRequest) Validate() error {
	if r.ReceiverUtorid == "" {
		return errors.New("receiver utorid is required")
	}
	if !r.Spent.IsPositive() {
		return errors.New("spent amount must be positive")
	}
	return nil
}

type RedemptionRequest struct {
	Utorid string
	Amount uint
	Remark string
}

func (RedemptionRequest) Kind() TransactionType { return TransactionRedemption }

func (r RedemptionRequest) Validate() error {
	if r.Utorid == "" {
		return errors.New("utorid is required")
	}
	if r.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

type TransferRequest struct {
	IssuerUtorid   string
	ReceiverUtorid string
	Amount         uint
	Remark         string
}

func (TransferRequest) Kind() TransactionType { return TransactionTransfer }

func (r TransferRequest) Validate() error {
	if r.IssuerUtorid == "" || r.ReceiverUtorid == "" {
		return errors.New("issuer and receiver utorids are required")
	}
	if r.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

type EventAwardRequest struct {
	EventID     int64
	GuestUtorid string
	Amount      uint
	Remark      string
}

func (EventAwardRequest) Kind() TransactionType { return TransactionEvent }

func (r EventAwardRequest) Validate() error {
	if r.EventID == 0 {
		return errors.New("event id is required")
	}
	if r.GuestUtorid == "" {
		return errors.New("guest utorid is required")
	}
	if r.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

type AdjustmentRequest struct {
	Utorid    string
	Amount    int64
	RelatedID *int64
	Remark    string
}

func (AdjustmentRequest) Kind() TransactionType { return TransactionAdjustment }

func (r AdjustmentRequest) Validate() error {
	if r.Utorid == "" {
		return errors.New("utorid is required")
	}
	if r.Amount == 0 {
		return errors.New("amount must be non-zero")
	}
	return nil
}

// TransactionFilter controls history queries.
type TransactionFilter struct {
	UserID      *int64 // matches issuer or receiver
	Type        *TransactionType
	PromotionID *int64
	EventID     *int64
	Suspicious  *bool
	Processed   *bool
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
	Desc        bool
}
