package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, db *testDB, pool uint) {
	ctx := context.Background()
	now := time.Now()

	users := []*UserEntity{
		{ID: 1, Utorid: "organizer1", Role: "regular", Verified: true, Activated: true},
		{ID: 2, Utorid: "guest1", Role: "regular", Verified: true, Activated: true},
		{ID: 3, Utorid: "guest2", Role: "regular", Verified: true, Activated: true},
	}
	for _, u := range users {
		require.NoError(t, db.Write(ctx).Create(u).Error)
	}

	event := &EventEntity{
		ID:           1,
		Name:         "career fair",
		PointsRemain: pool,
		Published:    true,
		StartsAt:     now.Add(-time.Hour),
		EndsAt:       now.Add(time.Hour),
	}
	require.NoError(t, db.Write(ctx).Create(event).Error)
	require.NoError(t, db.Write(ctx).Create(&EventGuestEntity{EventID: 1, UserID: 2}).Error)
	require.NoError(t, db.Write(ctx).Create(&EventGuestEntity{EventID: 1, UserID: 3}).Error)
	require.NoError(t, db.Write(ctx).Create(&EventOrganizerEntity{EventID: 1, UserID: 1}).Error)
}

func TestEventRepository_DeductPool(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewEventRepository(tdb.DB)
	ctx := context.Background()
	seedEvent(t, tdb, 100)

	t.Run("successful decrement", func(t *testing.T) {
		err := repo.DeductPool(ctx, 1, 60)
		require.NoError(t, err)

		event, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(40), event.PointsRemain)
	})

	t.Run("exhausted pool", func(t *testing.T) {
		err := repo.DeductPool(ctx, 1, 50)
		assert.ErrorIs(t, err, ErrPoolExhausted)

		event, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(40), event.PointsRemain)
	})

	t.Run("event not found", func(t *testing.T) {
		err := repo.DeductPool(ctx, 999, 10)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestEventRepository_Guests(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewEventRepository(tdb.DB)
	ctx := context.Background()
	seedEvent(t, tdb, 100)

	guests, err := repo.Guests(ctx, 1)
	require.NoError(t, err)
	require.Len(t, guests, 2)
	assert.Equal(t, "guest1", guests[0].Utorid)
	assert.Equal(t, "guest2", guests[1].Utorid)
}

func TestEventRepository_Membership(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewEventRepository(tdb.DB)
	ctx := context.Background()
	seedEvent(t, tdb, 100)

	isGuest, err := repo.IsGuest(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, isGuest)

	isGuest, err = repo.IsGuest(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, isGuest)

	isOrganizer, err := repo.IsOrganizer(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, isOrganizer)

	isOrganizer, err = repo.IsOrganizer(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, isOrganizer)
}
