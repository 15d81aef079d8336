package repository

import (
	"context"
	"testing"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogRepository_Create(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewAuditLogRepository(tdb.DB)
	ctx := context.Background()

	entry := &model.AuditLogEntry{
		TransactionID: 41,
		Action:        model.AuditCreated,
		Type:          model.TransactionPurchase,
		Amount:        80,
		Applied:       true,
		OccurredAt:    time.Now(),
	}

	created, err := repo.Create(ctx, entry)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	// Redelivery of the same (transaction, action) pair is a no-op
	_, err = repo.Create(ctx, entry)
	assert.ErrorIs(t, err, ErrAuditDuplicate)

	// A different action on the same transaction is a new row
	processed := &model.AuditLogEntry{
		TransactionID: 41,
		Action:        model.AuditProcessed,
		Type:          model.TransactionPurchase,
		Amount:        80,
		Processed:     true,
		OccurredAt:    time.Now(),
	}
	_, err = repo.Create(ctx, processed)
	require.NoError(t, err)

	entries, err := repo.ListByTransaction(ctx, 41)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
