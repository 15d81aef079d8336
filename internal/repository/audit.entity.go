package repository

import (
	"time"

	"github.com/campuspoints/points-engine/internal/model"
)

type AuditLogEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID int64     `db:"transaction_id" gorm:"column:transaction_id;not null;uniqueIndex:idx_audit_txn_action,priority:1"`
	Action        string    `db:"action"         gorm:"column:action;not null;uniqueIndex:idx_audit_txn_action,priority:2"`
	Type          string    `db:"type"           gorm:"column:type;not null"`
	Amount        int64     `db:"amount"         gorm:"column:amount;not null"`
	Suspicious    bool      `db:"suspicious"     gorm:"column:suspicious;not null;default:false"`
	Applied       bool      `db:"applied"        gorm:"column:applied;not null;default:false"`
	Processed     bool      `db:"processed"      gorm:"column:processed;not null;default:false"`
	OccurredAt    time.Time `db:"occurred_at"    gorm:"column:occurred_at;not null"`
	RecordedAt    time.Time `db:"recorded_at"    gorm:"column:recorded_at;not null;autoCreateTime"`
}

func (AuditLogEntity) TableName() string {
	return "audit_log"
}

func toAuditLogEntity(m *model.AuditLogEntry) *AuditLogEntity {
	if m == nil {
		return nil
	}
	return &AuditLogEntity{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		Action:        string(m.Action),
		Type:          string(m.Type),
		Amount:        m.Amount,
		Suspicious:    m.Suspicious,
		Applied:       m.Applied,
		Processed:     m.Processed,
		OccurredAt:    m.OccurredAt,
		RecordedAt:    m.RecordedAt,
	}
}

func toAuditLogModel(e *AuditLogEntity) *model.AuditLogEntry {
	if e == nil {
		return nil
	}
	return &model.AuditLogEntry{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		Action:        model.AuditAction(e.Action),
		Type:          model.TransactionType(e.Type),
		Amount:        e.Amount,
		Suspicious:    e.Suspicious,
		Applied:       e.Applied,
		Processed:     e.Processed,
		OccurredAt:    e.OccurredAt,
		RecordedAt:    e.RecordedAt,
	}
}
