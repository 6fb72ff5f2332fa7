// Package fanout relays every raw gateway event to the registered subscriber webhooks and
// keeps per-subscriber delivery health.
package fanout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/repository"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	HeaderForward   = "X-Astra-Forward"
	HeaderWebhookID = "X-Astra-Webhook-ID"

	maxErrorBody = 500
)

// Outcome is the result of one delivery attempt to one subscriber.
type Outcome struct {
	WebhookID  string `json:"webhook_id"`
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher posts a payload to every enabled subscriber concurrently. One subscriber's
// failure never affects another's delivery or stats.
type Dispatcher struct {
	webhooks    repository.WebhookRepository
	failures    repository.FailedDeliveryRepository
	httpClient  *http.Client
	timeout     time.Duration
	concurrency int
	now         func() time.Time
}

// NewDispatcher creates a dispatcher. A nil failures repository disables failure records.
func NewDispatcher(webhooks repository.WebhookRepository, failures repository.FailedDeliveryRepository, timeout time.Duration, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		webhooks:    webhooks,
		failures:    failures,
		httpClient:  &http.Client{},
		timeout:     timeout,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Dispatch delivers payload to a snapshot of the enabled registrations taken now.
// It only fails when the registrations cannot be listed.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) ([]Outcome, error) {
	hooks, err := d.webhooks.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(hooks))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, hook := range hooks {
		g.Go(func() error {
			outcomes[i] = d.deliverAndRecord(ctx, hook, payload)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	logger.Base().Info("Webhook fan-out finished",
		zap.Int("subscribers", len(hooks)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(hooks)-succeeded))
	return outcomes, nil
}

// DispatchAsync runs Dispatch in the background, detached from the caller's cancellation.
func (d *Dispatcher) DispatchAsync(ctx context.Context, payload []byte) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := d.Dispatch(ctx, payload); err != nil {
			logger.Base().Error("Webhook fan-out failed", zap.Error(err))
		}
	}()
}

func (d *Dispatcher) deliverAndRecord(ctx context.Context, hook *domain.WebhookRegistration, payload []byte) Outcome {
	outcome := d.Send(ctx, hook, payload)
	now := d.now()

	if outcome.Success {
		metrics.FanoutDeliveries.WithLabelValues("success").Inc()
		if err := d.webhooks.RecordSuccess(ctx, hook.ID, now); err != nil {
			logger.Base().Warn("Failed to record webhook success", zap.String("webhook_id", hook.ID), zap.Error(err))
		}
		return outcome
	}

	metrics.FanoutDeliveries.WithLabelValues("failure").Inc()
	logger.Base().Warn("Webhook delivery failed",
		zap.String("webhook_id", hook.ID),
		zap.String("url", hook.URL),
		zap.String("error", outcome.Error))

	if err := d.webhooks.RecordFailure(ctx, hook.ID, outcome.Error, now); err != nil {
		logger.Base().Warn("Failed to record webhook failure", zap.String("webhook_id", hook.ID), zap.Error(err))
	}
	if d.failures != nil {
		record := &domain.FailedDeliveryRecord{
			WebhookID:     hook.ID,
			Payload:       payload,
			Error:         outcome.Error,
			Attempts:      1,
			Status:        domain.DeliveryStatusPending,
			NextAttemptAt: now.Add(NextAttemptDelay(1)),
		}
		if err := d.failures.Create(ctx, record); err != nil {
			logger.Base().Warn("Failed to store failed delivery", zap.String("webhook_id", hook.ID), zap.Error(err))
		}
	}
	return outcome
}

// Send posts payload to one subscriber without touching its stats.
func (d *Dispatcher) Send(ctx context.Context, hook *domain.WebhookRegistration, payload []byte) Outcome {
	outcome := Outcome{WebhookID: hook.ID, URL: hook.URL}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderForward, "true")
	req.Header.Set(HeaderWebhookID, hook.ID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		outcome.Success = true
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		outcome.Error = fmt.Sprintf("Status %d: %s", resp.StatusCode, string(body))
	}
	return outcome
}
