package model

import "time"

// AuditAction names the ledger mutation an audit event records.
type AuditAction string

const (
	AuditCreated   AuditAction = "created"
	AuditProcessed AuditAction = "processed"
	AuditReplayed  AuditAction = "replayed"
	AuditFlagged   AuditAction = "flagged"
)

// AuditEvent is the post-commit record published to the audit stream.
// Applied distinguishes "exists in the ledger" from "affected a
// balance" for suspicious-deferred transactions.
type AuditEvent struct {
	Action        AuditAction     `json:"action"`
	TransactionID int64           `json:"transaction_id"`
	Type          TransactionType `json:"type"`
	IssuerID      int64           `json:"issuer_id"`
	ReceiverID    int64           `json:"receiver_id"`
	Amount        int64           `json:"amount"`
	Suspicious    bool            `json:"suspicious"`
	Applied       bool            `json:"applied"`
	Processed     bool            `json:"processed"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// AuditLogEntry is the durable row the audit consumer writes for each
// event it drains from the stream.
type AuditLogEntry struct {
	ID            int64
	TransactionID int64
	Action        AuditAction
	Type          TransactionType
	Amount        int64
	Suspicious    bool
	Applied       bool
	Processed     bool
	OccurredAt    time.Time
	RecordedAt    time.Time
}

func NewAuditEvent(action AuditAction, txn *Transaction) *AuditEvent {
	return &AuditEvent{
		Action:        action,
		TransactionID: txn.ID,
		Type:          txn.Type,
		IssuerID:      txn.IssuerID,
		ReceiverID:    txn.ReceiverID,
		Amount:        txn.Amount,
		Suspicious:    txn.Suspicious,
		Applied:       txn.Applied,
		Processed:     txn.Processed,
		OccurredAt:    time.Now(),
	}
}
