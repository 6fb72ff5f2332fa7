package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestManager(t *testing.T) *GormRepositoryManager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(db))
	m := NewGormRepositoryManager(db)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestWebhookRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)

	created, err := repos.Webhook().Create(ctx, &domain.CreateWebhookRequest{URL: "https://a.example/hook", Description: "a"})
	require.NoError(t, err)
	assert.Len(t, created.ID, 36)
	assert.True(t, created.Enabled)

	second, err := repos.Webhook().Create(ctx, &domain.CreateWebhookRequest{URL: "https://b.example/hook"})
	require.NoError(t, err)

	all, err := repos.Webhook().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repos.Webhook().SetEnabled(ctx, second.ID, false))
	enabled, err := repos.Webhook().ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, created.ID, enabled[0].ID)

	got, err := repos.Webhook().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/hook", got.URL)

	require.NoError(t, repos.Webhook().Delete(ctx, created.ID))
	_, err = repos.Webhook().GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repos.Webhook().Delete(ctx, created.ID), ErrNotFound)
}

func TestWebhookRepository_Counters(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)

	hook, err := repos.Webhook().Create(ctx, &domain.CreateWebhookRequest{URL: "https://a.example/hook"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repos.Webhook().RecordSuccess(ctx, hook.ID, now))
	require.NoError(t, repos.Webhook().RecordSuccess(ctx, hook.ID, now))
	require.NoError(t, repos.Webhook().RecordFailure(ctx, hook.ID, "Status 500: boom", now))

	got, err := repos.Webhook().GetByID(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SuccessCount)
	assert.Equal(t, int64(1), got.FailureCount)
	assert.Equal(t, "Status 500: boom", got.LastError)
	assert.NotNil(t, got.LastSuccessAt)
	assert.NotNil(t, got.LastFailureAt)
}

func TestFailedDeliveryRepository(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)
	now := time.Now().UTC()

	due := &domain.FailedDeliveryRecord{WebhookID: "w1", Payload: []byte(`{"a":1}`), Error: "timeout", NextAttemptAt: now.Add(-time.Minute)}
	later := &domain.FailedDeliveryRecord{WebhookID: "w1", Payload: []byte(`{"a":2}`), NextAttemptAt: now.Add(time.Hour)}
	require.NoError(t, repos.FailedDelivery().Create(ctx, due))
	require.NoError(t, repos.FailedDelivery().Create(ctx, later))
	assert.NotEmpty(t, due.ID)
	assert.Equal(t, domain.DeliveryStatusPending, due.Status)

	list, err := repos.FailedDelivery().ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)
	assert.Equal(t, `{"a":1}`, string(list[0].Payload))

	require.NoError(t, repos.FailedDelivery().Reschedule(ctx, due.ID, 1, now.Add(2*time.Minute), "still down"))
	list, err = repos.FailedDelivery().ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repos.FailedDelivery().MarkDelivered(ctx, later.ID, 2))
	require.NoError(t, repos.FailedDelivery().MarkAbandoned(ctx, due.ID, 5, "gave up"))

	byHook, err := repos.FailedDelivery().ListByWebhook(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, byHook, 2)
	statuses := map[string]domain.DeliveryStatus{}
	for _, r := range byHook {
		statuses[r.ID] = r.Status
	}
	assert.Equal(t, domain.DeliveryStatusAbandoned, statuses[due.ID])
	assert.Equal(t, domain.DeliveryStatusDelivered, statuses[later.ID])

	assert.ErrorIs(t, repos.FailedDelivery().MarkDelivered(ctx, "missing", 1), ErrNotFound)
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)

	err := repos.WithTx(ctx, func(ctx context.Context, tx RepositoryManager) error {
		if _, err := tx.Webhook().Create(ctx, &domain.CreateWebhookRequest{URL: "https://a.example"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	all, err := repos.Webhook().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, repos.Ping(ctx))
}

func TestFailedDeliveryRepository_Claim(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)
	now := time.Now().UTC()

	rec := &domain.FailedDeliveryRecord{WebhookID: "w1", Payload: []byte(`{}`), NextAttemptAt: now.Add(-time.Minute)}
	require.NoError(t, repos.FailedDelivery().Create(ctx, rec))

	ok, err := repos.FailedDelivery().Claim(ctx, rec.ID, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.FailedDelivery().Claim(ctx, rec.ID, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := repos.FailedDelivery().ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	later := now.Add(6 * time.Minute)
	list, err = repos.FailedDelivery().ListDue(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DeliveryStatusInFlight, list[0].Status)

	ok, err = repos.FailedDelivery().Claim(ctx, rec.ID, later, later.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repos.FailedDelivery().Reschedule(ctx, rec.ID, 2, later.Add(time.Minute), "down"))
	ok, err = repos.FailedDelivery().Claim(ctx, rec.ID, later, later.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "rescheduled records are pending again")

	require.NoError(t, repos.FailedDelivery().MarkDelivered(ctx, rec.ID, 3))
	ok, err = repos.FailedDelivery().Claim(ctx, rec.ID, later.Add(time.Hour), later.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := repos.FailedDelivery().Claim(ctx, "missing", now, now)
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestFailedDeliveryRepository_AbandonByWebhook(t *testing.T) {
	ctx := context.Background()
	repos := newTestManager(t)
	now := time.Now().UTC()

	pending := &domain.FailedDeliveryRecord{WebhookID: "w1", Payload: []byte(`{}`), NextAttemptAt: now}
	delivered := &domain.FailedDeliveryRecord{WebhookID: "w1", Payload: []byte(`{}`), NextAttemptAt: now}
	other := &domain.FailedDeliveryRecord{WebhookID: "w2", Payload: []byte(`{}`), NextAttemptAt: now}
	for _, r := range []*domain.FailedDeliveryRecord{pending, delivered, other} {
		require.NoError(t, repos.FailedDelivery().Create(ctx, r))
	}
	require.NoError(t, repos.FailedDelivery().MarkDelivered(ctx, delivered.ID, 2))

	n, err := repos.FailedDelivery().AbandonByWebhook(ctx, "w1", "webhook deleted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	byHook, err := repos.FailedDelivery().ListByWebhook(ctx, "w1", 10)
	require.NoError(t, err)
	statuses := map[string]domain.DeliveryStatus{}
	for _, r := range byHook {
		statuses[r.ID] = r.Status
	}
	assert.Equal(t, domain.DeliveryStatusAbandoned, statuses[pending.ID])
	assert.Equal(t, domain.DeliveryStatusDelivered, statuses[delivered.ID])

	list, err := repos.FailedDelivery().ListByWebhook(ctx, "w2", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DeliveryStatusPending, list[0].Status)
}
