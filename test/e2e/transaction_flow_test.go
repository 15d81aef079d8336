package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/internal/processor"
	"github.com/campuspoints/points-engine/internal/queue"
	"github.com/campuspoints/points-engine/internal/repository"
	"github.com/campuspoints/points-engine/internal/services"
	"github.com/campuspoints/points-engine/pkg/pg"
	"github.com/campuspoints/points-engine/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB = pg.DB

type TestEnvironment struct {
	DB              *pg.DB
	Redis           *miniredis.Miniredis
	RedisAdapter    redis.RedisAdapter
	Queue           *queue.Queue
	UserRepo        *repository.UserRepository
	TransactionRepo *repository.TransactionRepository
	PromotionRepo   *repository.PromotionRepository
	EventRepo       *repository.EventRepository
	AuditLogRepo    *repository.AuditLogRepository
	Ledger          *services.LedgerService
	Events          *services.EventService
	AuditProcessor  *processor.AuditEventProcessor
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
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

	pgDB := &testDB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	queueConfig := queue.QueueConfig{
		Name:              "test:audit",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}

	q, err := queue.NewQueue(redisAdapter, queueConfig)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(pgDB)
	transactionRepo := repository.NewTransactionRepository(pgDB)
	promotionRepo := repository.NewPromotionRepository(pgDB)
	eventRepo := repository.NewEventRepository(pgDB)
	auditLogRepo := repository.NewAuditLogRepository(pgDB)

	ledger := services.NewLedgerService(userRepo, transactionRepo, promotionRepo, eventRepo, q)
	events := services.NewEventService(userRepo, eventRepo, ledger)

	idempotency := processor.NewIdempotencyService(redisAdapter, processor.DefaultIdempotencyConfig())
	auditProcessor := processor.NewAuditEventProcessor(auditLogRepo, idempotency)

	return &TestEnvironment{
		DB:              pgDB,
		Redis:           mr,
		RedisAdapter:    redisAdapter,
		Queue:           q,
		UserRepo:        userRepo,
		TransactionRepo: transactionRepo,
		PromotionRepo:   promotionRepo,
		EventRepo:       eventRepo,
		AuditLogRepo:    auditLogRepo,
		Ledger:          ledger,
		Events:          events,
		AuditProcessor:  auditProcessor,
	}
}

func (env *TestEnvironment) Cleanup() {
	// Stop queue first (gracefully drain messages)
	if env.Queue != nil {
		_ = env.Queue.Stop(5 * time.Second)
	}
	// Give time for any in-flight operations to complete
	time.Sleep(100 * time.Millisecond)
	// Then close Redis
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func (env *TestEnvironment) createUser(t *testing.T, utorid string, role model.Role, balance uint) *repository.UserEntity {
	user := &repository.UserEntity{
		Utorid:    utorid,
		Role:      string(role),
		Balance:   balance,
		Verified:  true,
		Activated: true,
	}
	err := env.DB.Write(context.Background()).Create(user).Error
	require.NoError(t, err)
	return user
}

func TestE2E_PurchaseAwardsPoints(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "cashier1", model.RoleCashier, 0)
	student := env.createUser(t, "student1", model.RoleRegular, 0)

	txn, err := env.Ledger.Apply(ctx, "cashier1", model.PurchaseRequest{
		ReceiverUtorid: "student1",
		Spent:          decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)
	assert.NotZero(t, txn.ID)
	assert.Equal(t, int64(80), txn.Amount) // 19.99 * 4 rounded half up
	assert.True(t, txn.Applied)

	var updated repository.UserEntity
	err = env.DB.Read(ctx).First(&updated, student.ID).Error
	require.NoError(t, err)
	assert.Equal(t, uint(80), updated.Balance)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))
}

func TestE2E_RedemptionLifecycle(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "cashier1", model.RoleCashier, 0)
	student := env.createUser(t, "student1", model.RoleRegular, 500)

	// Request phase: row exists, balance untouched
	txn, err := env.Ledger.Apply(ctx, "student1", model.RedemptionRequest{
		Utorid: "student1",
		Amount: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-200), txn.Amount)
	assert.False(t, txn.Processed)

	balance, err := env.UserRepo.GetBalance(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(500), balance)

	// Processing phase: balance debited exactly once
	processed, err := env.Ledger.ProcessRedemption(ctx, "cashier1", txn.ID)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	assert.True(t, processed.Applied)

	balance, err = env.UserRepo.GetBalance(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(300), balance)

	// Second processing attempt is rejected
	_, err = env.Ledger.ProcessRedemption(ctx, "cashier1", txn.ID)
	require.Error(t, err)
	kind, ok := services.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, services.KindPrecondition, kind)
}

func TestE2E_RedemptionInsufficientBalance(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "broke1", model.RoleRegular, 10)

	_, err := env.Ledger.Apply(ctx, "broke1", model.RedemptionRequest{
		Utorid: "broke1",
		Amount: 100,
	})
	require.Error(t, err)
	kind, ok := services.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, services.KindPrecondition, kind)

	var count int64
	env.DB.Read(ctx).Model(&repository.TransactionEntity{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestE2E_TransferMovesPoints(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	sender := env.createUser(t, "student1", model.RoleRegular, 300)
	receiver := env.createUser(t, "student2", model.RoleRegular, 0)

	debit, err := env.Ledger.Apply(ctx, "student1", model.TransferRequest{
		IssuerUtorid:   "student1",
		ReceiverUtorid: "student2",
		Amount:         120,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-120), debit.Amount)
	require.NotNil(t, debit.RelatedID)

	credit, err := env.TransactionRepo.GetByID(ctx, *debit.RelatedID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), credit.Amount)
	assert.Equal(t, int64(0), debit.Amount+credit.Amount)

	senderBalance, err := env.UserRepo.GetBalance(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(180), senderBalance)

	receiverBalance, err := env.UserRepo.GetBalance(ctx, receiver.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(120), receiverBalance)
}

func TestE2E_SuspiciousPurchaseDeferredThenReplayed(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "cashier1", model.RoleCashier, 0)
	env.createUser(t, "manager1", model.RoleManager, 0)
	shady := &repository.UserEntity{
		Utorid:     "shady1",
		Role:       string(model.RoleRegular),
		Balance:    0,
		Verified:   true,
		Suspicious: true,
		Activated:  true,
	}
	require.NoError(t, env.DB.Write(ctx).Create(shady).Error)

	txn, err := env.Ledger.Apply(ctx, "cashier1", model.PurchaseRequest{
		ReceiverUtorid: "shady1",
		Spent:          decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.True(t, txn.Suspicious)
	assert.False(t, txn.Applied)

	balance, err := env.UserRepo.GetBalance(ctx, shady.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(0), balance)

	// Replay is blocked while the flag is set
	_, err = env.Ledger.ReprocessTransaction(ctx, "manager1", txn.ID)
	require.Error(t, err)

	// Clear the flag, then replay applies the deferred credit
	require.NoError(t, env.Ledger.FlagUser(ctx, "manager1", "shady1", false))

	replayed, err := env.Ledger.ReprocessTransaction(ctx, "manager1", txn.ID)
	require.NoError(t, err)
	assert.True(t, replayed.Applied)

	balance, err = env.UserRepo.GetBalance(ctx, shady.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(40), balance)
}

func TestE2E_EventDistribution(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "manager1", model.RoleManager, 0)
	guest1 := env.createUser(t, "student1", model.RoleRegular, 0)
	guest2 := env.createUser(t, "student2", model.RoleRegular, 0)

	event := &repository.EventEntity{
		Name:         "hackathon",
		PointsRemain: 100,
		Published:    true,
		StartsAt:     time.Now().Add(-time.Hour),
		EndsAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, env.DB.Write(ctx).Create(event).Error)
	require.NoError(t, env.DB.Write(ctx).Create(&repository.EventGuestEntity{EventID: event.ID, UserID: guest1.ID}).Error)
	require.NoError(t, env.DB.Write(ctx).Create(&repository.EventGuestEntity{EventID: event.ID, UserID: guest2.ID}).Error)

	txns, err := env.Events.Distribute(ctx, "manager1", event.ID, model.AllGuests(), 30, "hackathon award")
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	var updated repository.EventEntity
	require.NoError(t, env.DB.Read(ctx).First(&updated, event.ID).Error)
	assert.Equal(t, uint(40), updated.PointsRemain)

	for _, guest := range []*repository.UserEntity{guest1, guest2} {
		balance, err := env.UserRepo.GetBalance(ctx, guest.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(30), balance)
	}

	// A second full distribution exceeds the remaining pool and pays nobody
	_, err = env.Events.Distribute(ctx, "manager1", event.ID, model.AllGuests(), 30, "second round")
	require.Error(t, err)

	require.NoError(t, env.DB.Read(ctx).First(&updated, event.ID).Error)
	assert.Equal(t, uint(40), updated.PointsRemain)
}

func TestE2E_AuditEventConsumption(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "cashier1", model.RoleCashier, 0)
	env.createUser(t, "student1", model.RoleRegular, 0)

	txn, err := env.Ledger.Apply(ctx, "cashier1", model.PurchaseRequest{
		ReceiverUtorid: "student1",
		Spent:          decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)

	recorded := make(chan bool, 1)
	handler := func(ctx context.Context, qMsg *queue.Message) error {
		var event model.AuditEvent
		err := json.Unmarshal(qMsg.Data, &event)
		assert.NoError(t, err)
		assert.Equal(t, txn.ID, event.TransactionID)
		assert.Equal(t, model.AuditCreated, event.Action)

		if err := env.AuditProcessor.Process(ctx, qMsg); err != nil {
			return err
		}
		recorded <- true
		return nil
	}

	err = env.Queue.Consume(handler)
	require.NoError(t, err)

	select {
	case <-recorded:
	case <-time.After(3 * time.Second):
		t.Fatal("audit event not consumed within timeout")
	}

	entries, err := env.AuditLogRepo.ListByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditCreated, entries[0].Action)
	assert.Equal(t, model.TransactionPurchase, entries[0].Type)
}

func TestE2E_TransactionHistoryFiltering(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	env.createUser(t, "cashier1", model.RoleCashier, 0)
	env.createUser(t, "manager1", model.RoleManager, 0)
	student := env.createUser(t, "student1", model.RoleRegular, 0)

	for i := 0; i < 5; i++ {
		_, err := env.Ledger.Apply(ctx, "cashier1", model.PurchaseRequest{
			ReceiverUtorid: "student1",
			Spent:          decimal.RequireFromString("2.50"),
			Remark:         fmt.Sprintf("coffee %d", i),
		})
		require.NoError(t, err)
	}

	purchase := model.TransactionPurchase
	items, total, err := env.Ledger.History(ctx, "manager1", model.TransactionFilter{
		UserID: &student.ID,
		Type:   &purchase,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, items, 5)

	// Non-managers are pinned to their own history regardless of filter
	otherID := int64(999)
	_, total, err = env.Ledger.History(ctx, "student1", model.TransactionFilter{
		UserID: &otherID,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}
