package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormWebhookRepository implements WebhookRepository using GORM
type GormWebhookRepository struct {
	db *gorm.DB
}

func NewGormWebhookRepository(db *gorm.DB) *GormWebhookRepository {
	return &GormWebhookRepository{db: db}
}

func (r *GormWebhookRepository) Create(ctx context.Context, req *domain.CreateWebhookRequest) (*domain.WebhookRegistration, error) {
	webhook := &domain.WebhookRegistration{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Description: req.Description,
		Enabled:     true,
	}

	if err := r.db.WithContext(ctx).Create(webhook).Error; err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return webhook, nil
}

func (r *GormWebhookRepository) GetByID(ctx context.Context, id string) (*domain.WebhookRegistration, error) {
	var webhook domain.WebhookRegistration
	if err := r.db.WithContext(ctx).First(&webhook, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("webhook %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &webhook, nil
}

func (r *GormWebhookRepository) List(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	var webhooks []*domain.WebhookRegistration
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&webhooks).Error; err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

// ListEnabled returns the subscribers that receive fan-out.
func (r *GormWebhookRepository) ListEnabled(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	var webhooks []*domain.WebhookRegistration
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at ASC").Find(&webhooks).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled webhooks: %w", err)
	}
	return webhooks, nil
}

func (r *GormWebhookRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.WebhookRegistration{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GormWebhookRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&domain.WebhookRegistration{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to update webhook: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordSuccess increments the success counter atomically.
func (r *GormWebhookRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.WebhookRegistration{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"success_count":   gorm.Expr("success_count + ?", 1),
			"last_success_at": at,
			"updated_at":      at,
		}).Error
}

// RecordFailure increments the failure counter atomically and keeps the last error.
func (r *GormWebhookRepository) RecordFailure(ctx context.Context, id string, message string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.WebhookRegistration{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"failure_count":   gorm.Expr("failure_count + ?", 1),
			"last_error":      message,
			"last_failure_at": at,
			"updated_at":      at,
		}).Error
}

// GormFailedDeliveryRepository implements FailedDeliveryRepository using GORM
type GormFailedDeliveryRepository struct {
	db *gorm.DB
}

func NewGormFailedDeliveryRepository(db *gorm.DB) *GormFailedDeliveryRepository {
	return &GormFailedDeliveryRepository{db: db}
}

func (r *GormFailedDeliveryRepository) Create(ctx context.Context, record *domain.FailedDeliveryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = domain.DeliveryStatusPending
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create failed delivery: %w", err)
	}
	return nil
}

// ListDue returns pending records and expired leases whose next attempt is at or before now, oldest first.
func (r *GormFailedDeliveryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.FailedDeliveryRecord, error) {
	var records []*domain.FailedDeliveryRecord
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?", []domain.DeliveryStatus{domain.DeliveryStatusPending, domain.DeliveryStatusInFlight}, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due deliveries: %w", err)
	}
	return records, nil
}

func (r *GormFailedDeliveryRepository) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*domain.FailedDeliveryRecord, error) {
	var records []*domain.FailedDeliveryRecord
	err := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return records, nil
}

// Claim is a conditional update, so concurrent workers on different instances
// cannot both win the same record.
func (r *GormFailedDeliveryRepository) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.FailedDeliveryRecord{}).
		Where("id = ? AND (status = ? OR (status = ? AND next_attempt_at <= ?))",
			id, domain.DeliveryStatusPending, domain.DeliveryStatusInFlight, now).
		Updates(map[string]interface{}{
			"status":          domain.DeliveryStatusInFlight,
			"next_attempt_at": leaseUntil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim delivery %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *GormFailedDeliveryRepository) MarkDelivered(ctx context.Context, id string, attempts int) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":   domain.DeliveryStatusDelivered,
		"attempts": attempts,
	})
}

func (r *GormFailedDeliveryRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time, message string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":          domain.DeliveryStatusPending,
		"attempts":        attempts,
		"next_attempt_at": next,
		"error":           message,
	})
}

func (r *GormFailedDeliveryRepository) MarkAbandoned(ctx context.Context, id string, attempts int, message string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":   domain.DeliveryStatusAbandoned,
		"attempts": attempts,
		"error":    message,
	})
}

// AbandonByWebhook gives up every record of a subscriber that is still awaiting redelivery.
func (r *GormFailedDeliveryRepository) AbandonByWebhook(ctx context.Context, webhookID string, message string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.FailedDeliveryRecord{}).
		Where("webhook_id = ? AND status IN ?", webhookID, []domain.DeliveryStatus{domain.DeliveryStatusPending, domain.DeliveryStatusInFlight}).
		Updates(map[string]interface{}{
			"status": domain.DeliveryStatusAbandoned,
			"error":  message,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to abandon deliveries of webhook %s: %w", webhookID, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormFailedDeliveryRepository) update(ctx context.Context, id string, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.FailedDeliveryRecord{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update delivery %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return nil
}
