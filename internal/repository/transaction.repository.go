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
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyProcessed    = errors.New("redemption already processed")
	ErrAlreadyApplied      = errors.New("transaction effect already applied")
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create writes the ledger row and its promotion links. Must run inside
// the caller's store transaction so the row commits together with the
// balance mutation it records.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	for _, pid := range txn.PromotionIDs {
		link := &TransactionPromotionEntity{
			TransactionID: entity.ID,
			PromotionID:   pid,
		}
		if err := r.Write(ctx).WithContext(ctx).Create(link).Error; err != nil {
			return nil, err
		}
	}

	created := toTransactionModel(entity)
	created.PromotionIDs = txn.PromotionIDs
	return created, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	txn := toTransactionModel(&entity)
	if err := r.loadPromotionIDs(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// GetForUpdate locks the row for the remainder of the enclosing store
// transaction. Used by redemption processing and suspicious replay so
// two concurrent state transitions serialize.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) loadPromotionIDs(ctx context.Context, txn *model.Transaction) error {
	var links []*TransactionPromotionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", txn.ID).
		Order("promotion_id ASC").
		Find(&links).
		Error
	if err != nil {
		return err
	}
	for _, l := range links {
		txn.PromotionIDs = append(txn.PromotionIDs, l.PromotionID)
	}
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if f.UserID != nil {
		q = q.Where("issuer_id = ? OR receiver_id = ?", *f.UserID, *f.UserID)
	}
	if f.Type != nil {
		q = q.Where("type = ?", string(*f.Type))
	}
	if f.PromotionID != nil {
		q = q.Where("id IN (?)", r.Read(ctx).WithContext(ctx).
			Model(&TransactionPromotionEntity{}).
			Select("transaction_id").
			Where("promotion_id = ?", *f.PromotionID))
	}
	if f.EventID != nil {
		q = q.Where("event_id = ?", *f.EventID)
	}
	if f.Suspicious != nil {
		q = q.Where("suspicious = ?", *f.Suspicious)
	}
	if f.Processed != nil {
		q = q.Where("processed = ?", *f.Processed)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	txns := toTransactionModels(entities)
	for _, txn := range txns {
		if err := r.loadPromotionIDs(ctx, txn); err != nil {
			return nil, 0, err
		}
	}
	return txns, total, nil
}

// MarkProcessed flips a redemption to processed exactly once. The
// processed=false guard makes the transition idempotent under races: the
// loser of two concurrent processors sees zero affected rows.
func (r *TransactionRepository) MarkProcessed(ctx context.Context, id int64, processedBy int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_by": processedBy,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// MarkApplied records that a deferred balance effect has been replayed.
func (r *TransactionRepository) MarkApplied(ctx context.Context, id int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND applied = ?", id, false).
		Update("applied", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyApplied
	}
	return nil
}

func (r *TransactionRepository) SetSuspicious(ctx context.Context, id int64, suspicious bool) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", id).
		Update("suspicious", suspicious)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// LinkRelated back-fills the related id on the first leg of a transfer
// once the second leg exists.
func (r *TransactionRepository) LinkRelated(ctx context.Context, id, relatedID int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", id).
		Update("related_id", relatedID)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
