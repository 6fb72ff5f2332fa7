package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
)

// LanguageStore keeps manual contact languages in a hash and detections as expiring keys.
// It implements language.Preferences.
type LanguageStore struct {
	redis    redis.RedisServiceInterface
	cacheTTL time.Duration
}

func NewLanguageStore(r redis.RedisServiceInterface, cacheTTL time.Duration) *LanguageStore {
	if cacheTTL <= 0 {
		cacheTTL = config.DefaultLanguageCacheTTL
	}
	return &LanguageStore{redis: r, cacheTTL: cacheTTL}
}

func (s *LanguageStore) prefsKey() string {
	return s.redis.GenerateKey(redis.CONTACT_LANGUAGE, "")
}

func (s *LanguageStore) ContactLanguage(ctx context.Context, contact string) (string, error) {
	lang, err := s.redis.HashGet(ctx, s.prefsKey(), contact)
	if redis.IsNotExist(err) {
		return "", nil
	}
	return lang, err
}

func (s *LanguageStore) SetContactLanguage(ctx context.Context, contact, language string) error {
	if !config.IsSupportedLanguage(language) {
		return fmt.Errorf("unsupported language %q", language)
	}
	return s.redis.HashSet(ctx, s.prefsKey(), map[string]string{contact: language})
}

func (s *LanguageStore) DeleteContactLanguage(ctx context.Context, contact string) error {
	if err := s.redis.HashDel(ctx, s.prefsKey(), contact); err != nil {
		return err
	}
	return s.redis.DelValue(ctx, s.redis.GenerateKey(redis.LANGUAGE_CACHE, contact))
}

func (s *LanguageStore) ContactLanguages(ctx context.Context) (map[string]string, error) {
	return s.redis.HashGetAll(ctx, s.prefsKey())
}

// CachedLanguage returns the unexpired detection for contact, or "".
func (s *LanguageStore) CachedLanguage(ctx context.Context, contact string) (string, error) {
	lang, err := s.redis.GetValue(ctx, s.redis.GenerateKey(redis.LANGUAGE_CACHE, contact))
	if redis.IsNotExist(err) {
		return "", nil
	}
	return lang, err
}

func (s *LanguageStore) CacheLanguage(ctx context.Context, contact, language string) error {
	return s.redis.SetValue(ctx, s.redis.GenerateKey(redis.LANGUAGE_CACHE, contact), language, s.cacheTTL)
}
