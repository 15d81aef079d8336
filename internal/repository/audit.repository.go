package repository

import (
	"context"
	"errors"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/pkg/pg"
	"gorm.io/gorm/clause"
)

type AuditLogRepository struct {
	*pg.DB
}

func NewAuditLogRepository(db *pg.DB) *AuditLogRepository {
	return &AuditLogRepository{
		db,
	}
}

var ErrAuditDuplicate = errors.New("audit entry already recorded")

// Create inserts one audit row. The (transaction_id, action) pair is
// unique so a redelivered stream event cannot produce a second row.
func (r *AuditLogRepository) Create(ctx context.Context, entry *model.AuditLogEntry) (*model.AuditLogEntry, error) {
	entity := toAuditLogEntity(entry)

	result := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAuditDuplicate
	}

	return toAuditLogModel(entity), nil
}

func (r *AuditLogRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*model.AuditLogEntry, error) {
	var entities []*AuditLogEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("occurred_at asc").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	models := make([]*model.AuditLogEntry, len(entities))
	for i, e := range entities {
		models[i] = toAuditLogModel(e)
	}
	return models, nil
}
