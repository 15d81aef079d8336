package services

import (
	"context"
	"testing"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPromotionStore struct {
	mock.Mock
}

func (m *MockPromotionStore) ListByIDs(ctx context.Context, ids []int64) ([]*model.Promotion, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Promotion), args.Error(1)
}

func (m *MockPromotionStore) Wallet(ctx context.Context, userID int64) (map[int64]bool, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]bool), args.Error(1)
}

func (m *MockPromotionStore) Claim(ctx context.Context, promotionID, userID, transactionID int64) error {
	args := m.Called(ctx, promotionID, userID, transactionID)
	return args.Error(0)
}

func activePromotion(id int64, kind model.PromotionKind) *model.Promotion {
	return &model.Promotion{
		ID:       id,
		Kind:     kind,
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
	}
}

func TestPromotionEvaluator_NoCandidates(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID: 1,
		Spent:  decimal.RequireFromString("10.00"),
		Now:    time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, uint(0), result.Bonus)

	store.AssertNotCalled(t, "ListByIDs")
}

func TestPromotionEvaluator_RateBonus(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	rate := decimal.RequireFromString("0.05")
	promo := activePromotion(1, model.PromotionAutomatic)
	promo.Rate = &rate

	store.On("ListByIDs", ctx, []int64{1}).Return([]*model.Promotion{promo}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("19.99"),
		CandidateIDs: []int64{1},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	// ceil(19.99 * 0.05 * 4) = ceil(3.998) = 4
	assert.Equal(t, uint(4), result.Bonus)
	assert.Equal(t, []int64{1}, result.AppliedIDs())
}

func TestPromotionEvaluator_MinSpendingUnmet(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	minSpend := decimal.RequireFromString("50.00")
	rate := decimal.RequireFromString("0.10")
	promo := activePromotion(1, model.PromotionAutomatic)
	promo.MinSpending = &minSpend
	promo.Rate = &rate

	store.On("ListByIDs", ctx, []int64{1}).Return([]*model.Promotion{promo}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("20.00"),
		CandidateIDs: []int64{1},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, uint(0), result.Bonus)
}

func TestPromotionEvaluator_ExpiredDropped(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	promo := &model.Promotion{
		ID:       1,
		Kind:     model.PromotionAutomatic,
		StartsAt: time.Now().Add(-48 * time.Hour),
		EndsAt:   time.Now().Add(-24 * time.Hour),
		Points:   100,
	}
	store.On("ListByIDs", ctx, []int64{1}).Return([]*model.Promotion{promo}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("10.00"),
		CandidateIDs: []int64{1},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
}

func TestPromotionEvaluator_OneTimeRequiresWallet(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	promo := activePromotion(2, model.PromotionOneTime)
	promo.Points = 50

	store.On("ListByIDs", ctx, []int64{2}).Return([]*model.Promotion{promo}, nil)

	t.Run("held and unconsumed", func(t *testing.T) {
		store.On("Wallet", ctx, int64(1)).Return(map[int64]bool{2: true}, nil).Once()

		result, err := evaluator.Evaluate(ctx, EvaluateParams{
			UserID:       1,
			Spent:        decimal.RequireFromString("5.00"),
			CandidateIDs: []int64{2},
			Now:          time.Now(),
		})
		require.NoError(t, err)
		require.Len(t, result.Applied, 1)
		assert.Equal(t, uint(50), result.Bonus)
	})

	t.Run("not held", func(t *testing.T) {
		store.On("Wallet", ctx, int64(1)).Return(map[int64]bool{}, nil).Once()

		result, err := evaluator.Evaluate(ctx, EvaluateParams{
			UserID:       1,
			Spent:        decimal.RequireFromString("5.00"),
			CandidateIDs: []int64{2},
			Now:          time.Now(),
		})
		require.NoError(t, err)
		assert.Empty(t, result.Applied)
	})
}

func TestPromotionEvaluator_MinSpendingOnlyBindsAutomatic(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	minSpend := decimal.RequireFromString("50.00")
	promo := activePromotion(3, model.PromotionOneTime)
	promo.Points = 40
	promo.MinSpending = &minSpend

	store.On("ListByIDs", ctx, []int64{3}).Return([]*model.Promotion{promo}, nil)
	store.On("Wallet", ctx, int64(1)).Return(map[int64]bool{3: true}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("5.00"),
		CandidateIDs: []int64{3},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, uint(40), result.Bonus)
}

func TestPromotionEvaluator_UnknownIDsDropped(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	store.On("ListByIDs", ctx, []int64{999}).Return([]*model.Promotion{}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("10.00"),
		CandidateIDs: []int64{999},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
}

func TestPromotionEvaluator_RequireApplicable(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	t.Run("no candidates supplied", func(t *testing.T) {
		_, err := evaluator.Evaluate(ctx, EvaluateParams{
			UserID:            1,
			Spent:             decimal.RequireFromString("10.00"),
			Now:               time.Now(),
			RequireApplicable: true,
		})
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindPrecondition, kind)
	})

	t.Run("none applicable", func(t *testing.T) {
		store.On("ListByIDs", ctx, []int64{999}).Return([]*model.Promotion{}, nil)

		_, err := evaluator.Evaluate(ctx, EvaluateParams{
			UserID:            1,
			Spent:             decimal.RequireFromString("10.00"),
			CandidateIDs:      []int64{999},
			Now:               time.Now(),
			RequireApplicable: true,
		})
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindPrecondition, kind)
	})
}

func TestPromotionEvaluator_DuplicateCandidatesCountOnce(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	promo := activePromotion(1, model.PromotionAutomatic)
	promo.Points = 10

	store.On("ListByIDs", ctx, []int64{1}).Return([]*model.Promotion{promo}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("10.00"),
		CandidateIDs: []int64{1, 1, 1},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, uint(10), result.Bonus)
}

func TestPromotionEvaluator_StackedPromotions(t *testing.T) {
	store := new(MockPromotionStore)
	evaluator := NewPromotionEvaluator(store)
	ctx := context.Background()

	rate := decimal.RequireFromString("0.05")
	automatic := activePromotion(1, model.PromotionAutomatic)
	automatic.Rate = &rate

	oneTime := activePromotion(2, model.PromotionOneTime)
	oneTime.Points = 25

	store.On("ListByIDs", ctx, []int64{1, 2}).Return([]*model.Promotion{automatic, oneTime}, nil)
	store.On("Wallet", ctx, int64(1)).Return(map[int64]bool{2: true}, nil)

	result, err := evaluator.Evaluate(ctx, EvaluateParams{
		UserID:       1,
		Spent:        decimal.RequireFromString("20.00"),
		CandidateIDs: []int64{1, 2},
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Applied, 2)
	// ceil(20.00 * 0.05 * 4) + 25 = 4 + 25
	assert.Equal(t, uint(29), result.Bonus)
}
