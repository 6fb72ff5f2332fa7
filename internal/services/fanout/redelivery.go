package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/repository"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/metrics"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxAttemptDelay = time.Hour

// NextAttemptDelay is the wait before the next sweep picks up a record with the given attempts.
func NextAttemptDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 6 {
		return maxAttemptDelay
	}
	delay := time.Duration(1<<attempts) * time.Minute
	if delay > maxAttemptDelay {
		return maxAttemptDelay
	}
	return delay
}

type RedeliveryConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	// RPS paces requests across all records of a sweep.
	RPS int
	// Tries and the two intervals bound the in-sweep retries of one record.
	Tries           uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Lease is how long a claimed record stays with one worker before another may take it.
	Lease time.Duration
}

func DefaultRedeliveryConfig() RedeliveryConfig {
	return RedeliveryConfig{
		Interval:        time.Minute,
		MaxAttempts:     5,
		BatchSize:       100,
		RPS:             5,
		Tries:           3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Lease:           5 * time.Minute,
	}
}

// SweepStats summarizes one redelivery sweep.
type SweepStats struct {
	Delivered   int `json:"delivered"`
	Rescheduled int `json:"rescheduled"`
	Abandoned   int `json:"abandoned"`
	// Skipped counts records another worker claimed first.
	Skipped int `json:"skipped"`
}

// Redeliverer retries failed deliveries until they succeed or run out of attempts.
type Redeliverer struct {
	dispatcher *Dispatcher
	webhooks   repository.WebhookRepository
	failures   repository.FailedDeliveryRepository
	limiter    *rate.Limiter
	cfg        RedeliveryConfig
	now        func() time.Time

	mu sync.Mutex
}

func NewRedeliverer(dispatcher *Dispatcher, cfg RedeliveryConfig) *Redeliverer {
	def := DefaultRedeliveryConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Tries == 0 {
		cfg.Tries = def.Tries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}

	return &Redeliverer{
		dispatcher: dispatcher,
		webhooks:   dispatcher.webhooks,
		failures:   dispatcher.failures,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Sweep redelivers every pending record that is due.
func (r *Redeliverer) Sweep(ctx context.Context) (SweepStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.failures.ListDue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return SweepStats{}, err
	}
	return r.process(ctx, records), nil
}

// RedeliverWebhook retries the pending records of one subscriber right away, due or not.
func (r *Redeliverer) RedeliverWebhook(ctx context.Context, webhookID string) (SweepStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.failures.ListByWebhook(ctx, webhookID, r.cfg.BatchSize)
	if err != nil {
		return SweepStats{}, err
	}
	pending := records[:0]
	for _, rec := range records {
		if rec.Status == domain.DeliveryStatusPending {
			pending = append(pending, rec)
		}
	}
	return r.process(ctx, pending), nil
}

func (r *Redeliverer) process(ctx context.Context, records []*domain.FailedDeliveryRecord) SweepStats {
	var stats SweepStats
	hooks := make(map[string]*domain.WebhookRegistration)

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		now := r.now()
		claimed, err := r.failures.Claim(ctx, rec.ID, now, now.Add(r.cfg.Lease))
		if err != nil {
			logger.Base().Warn("Failed to claim delivery", zap.String("delivery_id", rec.ID), zap.Error(err))
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		hook, ok := hooks[rec.WebhookID]
		if !ok {
			var err error
			hook, err = r.webhooks.GetByID(ctx, rec.WebhookID)
			if errors.Is(err, repository.ErrNotFound) {
				hook = nil
			} else if err != nil {
				logger.Base().Warn("Failed to load webhook for redelivery", zap.String("webhook_id", rec.WebhookID), zap.Error(err))
				continue
			}
			hooks[rec.WebhookID] = hook
		}

		if hook == nil {
			r.abandon(ctx, rec, rec.Attempts, "webhook no longer registered")
			stats.Abandoned++
			continue
		}

		switch r.redeliver(ctx, hook, rec) {
		case domain.DeliveryStatusDelivered:
			stats.Delivered++
		case domain.DeliveryStatusAbandoned:
			stats.Abandoned++
		default:
			stats.Rescheduled++
		}
	}

	if len(records) > 0 {
		logger.Base().Info("Redelivery sweep finished",
			zap.Int("records", len(records)),
			zap.Int("delivered", stats.Delivered),
			zap.Int("rescheduled", stats.Rescheduled),
			zap.Int("abandoned", stats.Abandoned),
			zap.Int("skipped", stats.Skipped))
	}
	return stats
}

func (r *Redeliverer) redeliver(ctx context.Context, hook *domain.WebhookRegistration, rec *domain.FailedDeliveryRecord) domain.DeliveryStatus {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval

	tries := 0
	_, err := backoff.Retry(ctx, func() (Outcome, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return Outcome{}, backoff.Permanent(err)
		}
		tries++
		outcome := r.dispatcher.Send(ctx, hook, rec.Payload)
		if !outcome.Success {
			return outcome, errors.New(outcome.Error)
		}
		return outcome, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.cfg.Tries))

	attempts := rec.Attempts + tries
	now := r.now()

	if err == nil {
		metrics.FanoutDeliveries.WithLabelValues("redelivered").Inc()
		if err := r.failures.MarkDelivered(ctx, rec.ID, attempts); err != nil {
			logger.Base().Warn("Failed to mark delivery as delivered", zap.String("delivery_id", rec.ID), zap.Error(err))
		}
		if err := r.webhooks.RecordSuccess(ctx, hook.ID, now); err != nil {
			logger.Base().Warn("Failed to record webhook success", zap.String("webhook_id", hook.ID), zap.Error(err))
		}
		return domain.DeliveryStatusDelivered
	}

	if err := r.webhooks.RecordFailure(ctx, hook.ID, err.Error(), now); err != nil {
		logger.Base().Warn("Failed to record webhook failure", zap.String("webhook_id", hook.ID), zap.Error(err))
	}

	if attempts >= r.cfg.MaxAttempts {
		r.abandon(ctx, rec, attempts, err.Error())
		return domain.DeliveryStatusAbandoned
	}

	next := now.Add(NextAttemptDelay(attempts))
	if err := r.failures.Reschedule(ctx, rec.ID, attempts, next, err.Error()); err != nil {
		logger.Base().Warn("Failed to reschedule delivery", zap.String("delivery_id", rec.ID), zap.Error(err))
	}
	return domain.DeliveryStatusPending
}

func (r *Redeliverer) abandon(ctx context.Context, rec *domain.FailedDeliveryRecord, attempts int, reason string) {
	metrics.FanoutDeliveries.WithLabelValues("abandoned").Inc()
	logger.Base().Warn("Abandoning delivery",
		zap.String("delivery_id", rec.ID),
		zap.String("webhook_id", rec.WebhookID),
		zap.Int("attempts", attempts),
		zap.String("reason", reason))
	if err := r.failures.MarkAbandoned(ctx, rec.ID, attempts, reason); err != nil {
		logger.Base().Warn("Failed to mark delivery as abandoned", zap.String("delivery_id", rec.ID), zap.Error(err))
	}
}

// Start sweeps every interval until ctx is done.
func (r *Redeliverer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.Sweep(ctx); err != nil {
					logger.Base().Error("Redelivery sweep failed", zap.Error(err))
				}
			case <-ctx.Done():
				logger.Base().Info("Redelivery worker stopped")
				return
			}
		}
	}()

	logger.Base().Info("Started redelivery worker",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("max_attempts", r.cfg.MaxAttempts))
}

func (s SweepStats) String() string {
	return fmt.Sprintf("delivered=%d rescheduled=%d abandoned=%d skipped=%d", s.Delivered, s.Rescheduled, s.Abandoned, s.Skipped)
}
