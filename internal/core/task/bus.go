package task

import (
	"context"
	"encoding/json"

	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	TaskChannel = "astra:voicenote:tasks"
)

// RedisBus implements the Bus interface using Redis Pub/Sub
type RedisBus struct {
	redisSvc redis.PubSubInterface
}

// NewRedisBus creates a new Redis-based task bus
func NewRedisBus(redisSvc redis.PubSubInterface) *RedisBus {
	return &RedisBus{redisSvc: redisSvc}
}

// Publish sends a task to the bus
func (b *RedisBus) Publish(ctx context.Context, task Task) error {
	logger.Base().Debug("Publishing task", zap.String("type", string(task.Type)), zap.String("webhook_id", task.WebhookID))
	return b.redisSvc.Publish(ctx, TaskChannel, task)
}

// Subscribe listens for tasks on the bus until ctx is done
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Task)) error {
	logger.Base().Info("Subscribing to tasks", zap.String("channel", TaskChannel))
	return b.redisSvc.Subscribe(ctx, TaskChannel, func(payload string) {
		var task Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			logger.Base().Error("Failed to unmarshal task payload", zap.Error(err))
			return
		}
		handler(task)
	})
}
