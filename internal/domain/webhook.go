package domain

import (
	"time"
)

// WebhookRegistration is an external subscriber that receives a copy of every raw event.
type WebhookRegistration struct {
	ID            string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	URL           string     `json:"url" gorm:"type:text;not null"`
	Description   string     `json:"description" gorm:"type:text"`
	Enabled       bool       `json:"enabled" gorm:"not null;default:true"`
	SuccessCount  int64      `json:"success_count" gorm:"not null;default:0"`
	FailureCount  int64      `json:"failure_count" gorm:"not null;default:0"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (WebhookRegistration) TableName() string {
	return "webhook_registrations"
}

// DeliveryStatus tracks a failed delivery through redelivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	// DeliveryStatusInFlight marks a record claimed by one redelivery worker until NextAttemptAt.
	DeliveryStatusInFlight  DeliveryStatus = "in_flight"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// FailedDeliveryRecord keeps the original payload of a delivery that did not succeed.
type FailedDeliveryRecord struct {
	ID            string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	WebhookID     string         `json:"webhook_id" gorm:"type:varchar(36);index;not null"`
	Payload       []byte         `json:"-"`
	Error         string         `json:"error" gorm:"type:text"`
	Attempts      int            `json:"attempts" gorm:"not null;default:0"`
	Status        DeliveryStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (FailedDeliveryRecord) TableName() string {
	return "failed_deliveries"
}

// CreateWebhookRequest is the admin payload for registering a subscriber.
type CreateWebhookRequest struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}
