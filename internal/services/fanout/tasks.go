package fanout

import (
	"context"

	"github.com/ClareAI/astra-voicenote-service/internal/core/task"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"go.uber.org/zap"
)

// Listen runs redelivery tasks published by any instance until ctx is done.
func (r *Redeliverer) Listen(ctx context.Context, bus task.Bus) error {
	return bus.Subscribe(ctx, func(t task.Task) {
		// Handlers run on the subscription goroutine; a sweep must not block delivery of later tasks.
		go r.HandleTask(ctx, t)
	})
}

// HandleTask executes one redelivery task.
func (r *Redeliverer) HandleTask(ctx context.Context, t task.Task) {
	var (
		stats SweepStats
		err   error
	)
	switch t.Type {
	case task.TaskTypeRedeliverDue:
		stats, err = r.Sweep(ctx)
	case task.TaskTypeRedeliverWebhook:
		stats, err = r.RedeliverWebhook(ctx, t.WebhookID)
	default:
		logger.Base().Warn("Ignoring unknown task", zap.String("type", string(t.Type)))
		return
	}

	if err != nil {
		logger.Base().Error("Redelivery task failed",
			zap.String("type", string(t.Type)),
			zap.String("webhook_id", t.WebhookID),
			zap.Error(err))
		return
	}
	logger.Base().Info("Redelivery task done",
		zap.String("type", string(t.Type)),
		zap.String("webhook_id", t.WebhookID),
		zap.Stringer("stats", stats))
}
