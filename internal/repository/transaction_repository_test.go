package repository

import (
	"context"
	"testing"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLedgerUsers(t *testing.T, db *testDB) {
	ctx := context.Background()
	users := []*UserEntity{
		{ID: 1, Utorid: "cashier1", Role: "cashier", Verified: true, Activated: true},
		{ID: 2, Utorid: "student1", Role: "regular", Balance: 500, Verified: true, Activated: true},
		{ID: 3, Utorid: "student2", Role: "regular", Balance: 100, Verified: true, Activated: true},
	}
	for _, u := range users {
		require.NoError(t, db.Write(ctx).Create(u).Error)
	}
}

func TestTransactionRepository_Create(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	t.Run("purchase with promotion links", func(t *testing.T) {
		spent := decimal.RequireFromString("19.99")
		txn, err := repo.Create(ctx, &model.Transaction{
			Type:         model.TransactionPurchase,
			IssuerID:     1,
			ReceiverID:   2,
			Amount:       90,
			Spent:        &spent,
			PromotionIDs: []int64{7, 9},
			Applied:      true,
			Remark:       "bookstore",
		})
		require.NoError(t, err)
		assert.NotZero(t, txn.ID)

		got, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionPurchase, got.Type)
		assert.Equal(t, int64(90), got.Amount)
		assert.Equal(t, []int64{7, 9}, got.PromotionIDs)
		require.NotNil(t, got.Spent)
		assert.True(t, got.Spent.Equal(spent))
	})

	t.Run("redemption with negative amount", func(t *testing.T) {
		txn, err := repo.Create(ctx, &model.Transaction{
			Type:       model.TransactionRedemption,
			IssuerID:   2,
			ReceiverID: 2,
			Amount:     -150,
		})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(-150), got.Amount)
		assert.False(t, got.Processed)
		assert.False(t, got.Applied)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 9999)
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})
}

func TestTransactionRepository_MarkProcessed(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	txn, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionRedemption,
		IssuerID:   2,
		ReceiverID: 2,
		Amount:     -100,
	})
	require.NoError(t, err)

	err = repo.MarkProcessed(ctx, txn.ID, 1)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.ProcessedBy)
	assert.Equal(t, int64(1), *got.ProcessedBy)

	// Second transition loses the processed=false guard
	err = repo.MarkProcessed(ctx, txn.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestTransactionRepository_MarkApplied(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	txn, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionAdjustment,
		IssuerID:   1,
		ReceiverID: 2,
		Amount:     40,
		Suspicious: true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.MarkApplied(ctx, txn.ID))

	err = repo.MarkApplied(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestTransactionRepository_LinkRelated(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	debit, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionTransfer,
		IssuerID:   2,
		ReceiverID: 3,
		Amount:     -60,
		Applied:    true,
	})
	require.NoError(t, err)

	credit, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionTransfer,
		IssuerID:   2,
		ReceiverID: 3,
		Amount:     60,
		RelatedID:  &debit.ID,
		Applied:    true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.LinkRelated(ctx, debit.ID, credit.ID))

	got, err := repo.GetByID(ctx, debit.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RelatedID)
	assert.Equal(t, credit.ID, *got.RelatedID)
}

func TestTransactionRepository_List(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	spent := decimal.RequireFromString("5.00")
	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, &model.Transaction{
			Type:       model.TransactionPurchase,
			IssuerID:   1,
			ReceiverID: 2,
			Amount:     20,
			Spent:      &spent,
			Applied:    true,
		})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionRedemption,
		IssuerID:   3,
		ReceiverID: 3,
		Amount:     -50,
	})
	require.NoError(t, err)
	flagged, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionPurchase,
		IssuerID:   1,
		ReceiverID: 3,
		Amount:     10,
		Spent:      &spent,
		Suspicious: true,
	})
	require.NoError(t, err)

	t.Run("by user", func(t *testing.T) {
		userID := int64(2)
		items, total, err := repo.List(ctx, model.TransactionFilter{UserID: &userID})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, items, 3)
	})

	t.Run("by type", func(t *testing.T) {
		redemption := model.TransactionRedemption
		items, total, err := repo.List(ctx, model.TransactionFilter{Type: &redemption})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, int64(-50), items[0].Amount)
	})

	t.Run("by suspicious flag", func(t *testing.T) {
		suspicious := true
		items, total, err := repo.List(ctx, model.TransactionFilter{Suspicious: &suspicious})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, flagged.ID, items[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.TransactionFilter{Limit: 2, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 2)

		items, _, err = repo.List(ctx, model.TransactionFilter{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

func TestTransactionRepository_SetSuspicious(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()
	seedLedgerUsers(t, tdb)

	txn, err := repo.Create(ctx, &model.Transaction{
		Type:       model.TransactionAdjustment,
		IssuerID:   1,
		ReceiverID: 2,
		Amount:     10,
		Applied:    true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.SetSuspicious(ctx, txn.ID, true))

	got, err := repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, got.Suspicious)

	err = repo.SetSuspicious(ctx, 9999, true)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
