package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// KeySource supplies the configured keys of a provider and records their failures.
type KeySource interface {
	Keys(ctx context.Context, name Name) ([]string, error)
	NextOffset(ctx context.Context, name Name) (int64, error)
	MarkFailed(ctx context.Context, name Name, key string, reason string) error
}

// Rotator creates provider sessions. It holds no per-run state.
type Rotator struct {
	specs      map[Name]Spec
	keys       KeySource
	httpClient *http.Client
}

func NewRotator(keys KeySource, specs map[Name]Spec, httpClient *http.Client) *Rotator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Rotator{specs: specs, keys: keys, httpClient: httpClient}
}

// NewSession snapshots the keys of a provider for one pipeline run. The starting key comes
// from a shared counter so consecutive runs spread load across keys.
func (r *Rotator) NewSession(ctx context.Context, name Name) (*Session, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	keys, err := r.keys.Keys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load keys for %s: %w", name, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: provider %s has no keys configured", domain.ErrNoCredentials, name)
	}

	start := 0
	if offset, err := r.keys.NextOffset(ctx, name); err != nil {
		logger.Warn(ctx, "Failed to advance key offset, starting at first key",
			zap.String("provider", string(name)), zap.Error(err))
	} else {
		start = int((offset - 1) % int64(len(keys)))
		if start < 0 {
			start += len(keys)
		}
	}

	return &Session{
		spec:       spec,
		keys:       append([]string(nil), keys...),
		exhausted:  make([]bool, len(keys)),
		start:      start,
		source:     r.keys,
		httpClient: r.httpClient,
	}, nil
}

// Session is the per-run view of a provider. Keys that fail with a retryable error are
// skipped for the rest of the session.
type Session struct {
	spec       Spec
	keys       []string
	start      int
	source     KeySource
	httpClient *http.Client

	mu        sync.Mutex
	exhausted []bool
}

func (s *Session) Spec() Spec {
	return s.spec
}

// Usable returns the number of keys not yet exhausted in this session.
func (s *Session) Usable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.exhausted {
		if !e {
			n++
		}
	}
	return n
}

func (s *Session) next() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(s.keys); i++ {
		idx := (s.start + i) % len(s.keys)
		if !s.exhausted[idx] {
			return idx, true
		}
	}
	return 0, false
}

func (s *Session) markExhausted(idx int) {
	s.mu.Lock()
	s.exhausted[idx] = true
	s.mu.Unlock()
}

func (s *Session) client(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = s.spec.BaseURL
	cfg.HTTPClient = s.httpClient
	return openai.NewClientWithConfig(cfg)
}

// Do runs fn with successive keys until it succeeds, fails with a non-retryable error,
// or every key of the session has been exhausted.
func Do[T any](ctx context.Context, s *Session, fn func(ctx context.Context, client *openai.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	provider := string(s.spec.Name)

	for {
		idx, ok := s.next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, s.client(s.keys[idx]))
		if err == nil {
			metrics.ProviderAttempts.WithLabelValues(provider, "ok").Inc()
			return result, nil
		}

		if !IsRetryable(err) {
			metrics.ProviderAttempts.WithLabelValues(provider, "failed").Inc()
			return zero, fmt.Errorf("%s request failed: %w", provider, err)
		}

		metrics.ProviderAttempts.WithLabelValues(provider, "rotated").Inc()
		s.markExhausted(idx)
		lastErr = err

		logger.Warn(ctx, "Provider key failed, rotating",
			zap.String("provider", provider),
			zap.Int("key_index", idx),
			zap.Int("usable_keys", s.Usable()),
			zap.Error(err))

		if markErr := s.source.MarkFailed(ctx, s.spec.Name, s.keys[idx], err.Error()); markErr != nil {
			logger.Warn(ctx, "Failed to record key failure", zap.String("provider", provider), zap.Error(markErr))
		}
	}

	if lastErr == nil {
		lastErr = errors.New("all keys exhausted")
	}
	return zero, fmt.Errorf("%w: provider %s: %w", domain.ErrNoCredentials, provider, lastErr)
}

// Transcribe sends a speech-to-text request with the provider's transcription model.
func (s *Session) Transcribe(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	req.Model = s.spec.TranscriptionModel
	return Do(ctx, s, func(ctx context.Context, client *openai.Client) (openai.AudioResponse, error) {
		return client.CreateTranscription(ctx, req)
	})
}

// Chat sends a chat completion with the provider's chat model and returns the first choice.
func (s *Session) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	return Do(ctx, s, func(ctx context.Context, client *openai.Client) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.spec.ChatModel,
			Messages:    messages,
			Temperature: temperature,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("chat completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
