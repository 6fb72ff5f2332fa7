package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// WebhookRepository manages fan-out subscribers and their delivery counters.
type WebhookRepository interface {
	Create(ctx context.Context, req *domain.CreateWebhookRequest) (*domain.WebhookRegistration, error)
	GetByID(ctx context.Context, id string) (*domain.WebhookRegistration, error)
	List(ctx context.Context) ([]*domain.WebhookRegistration, error)
	ListEnabled(ctx context.Context) ([]*domain.WebhookRegistration, error)
	Delete(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error

	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, message string, at time.Time) error
}

// FailedDeliveryRepository manages deliveries awaiting redelivery.
type FailedDeliveryRepository interface {
	Create(ctx context.Context, record *domain.FailedDeliveryRecord) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.FailedDeliveryRecord, error)
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*domain.FailedDeliveryRecord, error)

	// Claim leases a record to the caller until leaseUntil. It reports false when
	// the record is not pending or is leased to another worker.
	Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string, attempts int) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, message string) error
	MarkAbandoned(ctx context.Context, id string, attempts int, message string) error
	AbandonByWebhook(ctx context.Context, webhookID string, message string) (int64, error)
}

// RepositoryManager combines all repositories
type RepositoryManager interface {
	Webhook() WebhookRepository
	FailedDelivery() FailedDeliveryRepository

	// Transaction support
	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db                 *gorm.DB
	webhookRepo        *GormWebhookRepository
	failedDeliveryRepo *GormFailedDeliveryRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:                 db,
		webhookRepo:        NewGormWebhookRepository(db),
		failedDeliveryRepo: NewGormFailedDeliveryRepository(db),
	}
}

func (m *GormRepositoryManager) Webhook() WebhookRepository {
	return m.webhookRepo
}

func (m *GormRepositoryManager) FailedDelivery() FailedDeliveryRepository {
	return m.failedDeliveryRepo
}

// WithTx executes a function within a database transaction
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
