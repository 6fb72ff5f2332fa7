package task

import (
	"context"
)

// TaskType defines the type of asynchronous task
type TaskType string

const (
	TaskTypeRedeliverDue     TaskType = "redeliver_due"     // Sweep every due failed delivery now
	TaskTypeRedeliverWebhook TaskType = "redeliver_webhook" // Retry the pending deliveries of one webhook
)

// Task represents an asynchronous task payload shared between service instances
type Task struct {
	Type      TaskType `json:"type"`
	WebhookID string   `json:"webhook_id,omitempty"`
}

// Bus defines the interface for the task bus
type Bus interface {
	Publish(ctx context.Context, task Task) error
	Subscribe(ctx context.Context, handler func(Task)) error
}
