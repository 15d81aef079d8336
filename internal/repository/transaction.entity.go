package repository

import (
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID          int64            `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Type        string           `db:"type"         gorm:"column:type;not null;index"`
	IssuerID    int64            `db:"issuer_id"    gorm:"column:issuer_id;not null;index"`
	ReceiverID  int64            `db:"receiver_id"  gorm:"column:receiver_id;not null;index"`
	Amount      int64            `db:"amount"       gorm:"column:amount;not null"`
	Spent       *decimal.Decimal `db:"spent"        gorm:"column:spent;type:numeric(12,2)"`
	EventID     *int64           `db:"event_id"     gorm:"column:event_id;index"`
	RelatedID   *int64           `db:"related_id"   gorm:"column:related_id;index"`
	Processed   bool             `db:"processed"    gorm:"column:processed;not null;default:false"`
	ProcessedBy *int64           `db:"processed_by" gorm:"column:processed_by"`
	Suspicious  bool             `db:"suspicious"   gorm:"column:suspicious;not null;default:false"`
	Applied     bool             `db:"applied"      gorm:"column:applied;not null;default:false"`
	Remark      string           `db:"remark"       gorm:"column:remark"`
	CreatedAt   time.Time        `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

// TransactionPromotionEntity records which promotions were applied to a
// purchase, one row per (transaction, promotion).
type TransactionPromotionEntity struct {
	ID            int64 `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID int64 `db:"transaction_id" gorm:"column:transaction_id;not null;uniqueIndex:idx_txn_promo"`
	PromotionID   int64 `db:"promotion_id"   gorm:"column:promotion_id;not null;uniqueIndex:idx_txn_promo"`
}

func (TransactionPromotionEntity) TableName() string {
	return "transaction_promotions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:          m.ID,
		Type:        string(m.Type),
		IssuerID:    m.IssuerID,
		ReceiverID:  m.ReceiverID,
		Amount:      m.Amount,
		Spent:       m.Spent,
		EventID:     m.EventID,
		RelatedID:   m.RelatedID,
		Processed:   m.Processed,
		ProcessedBy: m.ProcessedBy,
		Suspicious:  m.Suspicious,
		Applied:     m.Applied,
		Remark:      m.Remark,
		CreatedAt:   m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:          e.ID,
		Type:        model.TransactionType(e.Type),
		IssuerID:    e.IssuerID,
		ReceiverID:  e.ReceiverID,
		Amount:      e.Amount,
		Spent:       e.Spent,
		EventID:     e.EventID,
		RelatedID:   e.RelatedID,
		Processed:   e.Processed,
		ProcessedBy: e.ProcessedBy,
		Suspicious:  e.Suspicious,
		Applied:     e.Applied,
		Remark:      e.Remark,
		CreatedAt:   e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
