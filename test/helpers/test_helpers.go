package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/internal/repository"
	"github.com/campuspoints/points-engine/pkg/pg"
	"github.com/campuspoints/points-engine/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.UserEntity{},
		&repository.TransactionEntity{},
		&repository.TransactionPromotionEntity{},
		&repository.PromotionEntity{},
		&repository.PromotionWalletEntity{},
		&repository.EventEntity{},
		&repository.EventGuestEntity{},
		&repository.EventOrganizerEntity{},
		&repository.AuditLogEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestUser(t *testing.T, db *pg.DB, utorid string, role model.Role, balance uint) *repository.UserEntity {
	ctx := context.Background()
	user := &repository.UserEntity{
		Utorid:    utorid,
		Role:      string(role),
		Balance:   balance,
		Verified:  true,
		Activated: true,
	}
	err := db.Write(ctx).Create(user).Error
	require.NoError(t, err)
	return user
}

func CreateSuspiciousUser(t *testing.T, db *pg.DB, utorid string, balance uint) *repository.UserEntity {
	ctx := context.Background()
	user := &repository.UserEntity{
		Utorid:     utorid,
		Role:       string(model.RoleRegular),
		Balance:    balance,
		Verified:   true,
		Suspicious: true,
		Activated:  true,
	}
	err := db.Write(ctx).Create(user).Error
	require.NoError(t, err)
	return user
}

func CreateTestPromotion(t *testing.T, db *pg.DB, promo *model.Promotion) *repository.PromotionEntity {
	ctx := context.Background()
	entity := &repository.PromotionEntity{
		ID:       promo.ID,
		Name:     promo.Name,
		Kind:     string(promo.Kind),
		StartsAt: promo.StartsAt,
		EndsAt:   promo.EndsAt,
		Points:   promo.Points,
	}
	if promo.MinSpending != nil {
		entity.MinSpending = promo.MinSpending
	}
	if promo.Rate != nil {
		entity.Rate = promo.Rate
	}
	err := db.Write(ctx).Create(entity).Error
	require.NoError(t, err)
	return entity
}

func CreateTestEvent(t *testing.T, db *pg.DB, event *model.Event) *repository.EventEntity {
	ctx := context.Background()
	entity := &repository.EventEntity{
		ID:           event.ID,
		Name:         event.Name,
		Capacity:     event.Capacity,
		PointsRemain: event.PointsRemain,
		Published:    event.Published,
		StartsAt:     event.StartsAt,
		EndsAt:       event.EndsAt,
	}
	err := db.Write(ctx).Create(entity).Error
	require.NoError(t, err)
	return entity
}

func AddEventGuest(t *testing.T, db *pg.DB, eventID, userID int64) {
	ctx := context.Background()
	err := db.Write(ctx).Create(&repository.EventGuestEntity{
		EventID: eventID,
		UserID:  userID,
	}).Error
	require.NoError(t, err)
}

func AddEventOrganizer(t *testing.T, db *pg.DB, eventID, userID int64) {
	ctx := context.Background()
	err := db.Write(ctx).Create(&repository.EventOrganizerEntity{
		EventID: eventID,
		UserID:  userID,
	}).Error
	require.NoError(t, err)
}

func GrantPromotion(t *testing.T, db *pg.DB, promotionID, userID int64) {
	ctx := context.Background()
	err := db.Write(ctx).Create(&repository.PromotionWalletEntity{
		PromotionID: promotionID,
		UserID:      userID,
	}).Error
	require.NoError(t, err)
}

func GetBalance(t *testing.T, db *pg.DB, userID int64) uint {
	ctx := context.Background()
	var user repository.UserEntity
	err := db.Read(ctx).Where("id = ?", userID).First(&user).Error
	require.NoError(t, err)
	return user.Balance
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
